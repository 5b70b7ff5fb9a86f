package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Parse(t *testing.T) {
	n := NewNormalizer(8)

	testCases := []struct {
		name      string
		raw       string
		expected  time.Time
		expectErr bool
	}{
		{
			name:     "RFC3339 with offset is taken as-is",
			raw:      "2026-03-10T09:00:00+08:00",
			expected: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "RFC3339 UTC",
			raw:      "2026-03-10T09:00:00Z",
			expected: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "zoneless value is local wall-clock at the fixed offset",
			raw:      "2026-03-10 09:00:00",
			expected: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "zoneless T-separated value",
			raw:      "2026-03-10T09:00:00",
			expected: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "unix epoch seconds",
			raw:      "1774000000",
			expected: time.Unix(1774000000, 0).UTC(),
		},
		{
			name:      "empty",
			raw:       "",
			expectErr: true,
		},
		{
			name:      "garbage",
			raw:       "not-a-time",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Parse(tc.raw)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalidTimestamp)
				return
			}
			assert.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "expected %v, got %v", tc.expected, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalizer_Shift(t *testing.T) {
	n := NewNormalizer(8)

	// Instants chosen so the local wall-clock at UTC+8 lands in each shift.
	local := func(hour, min int) time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, time.FixedZone("UTC+8", 8*3600))
	}

	assert.Equal(t, "Morning", n.Shift(local(9, 0)))
	assert.Equal(t, "Morning", n.Shift(local(7, 0)))
	assert.Equal(t, "Evening", n.Shift(local(16, 0)))
	assert.Equal(t, "Evening", n.Shift(local(15, 0)))
	assert.Equal(t, "Night", n.Shift(local(23, 30)))
	assert.Equal(t, "Night", n.Shift(local(3, 0)))
	assert.Equal(t, "Night", n.Shift(local(6, 59)))
}

func TestNormalizer_Display(t *testing.T) {
	n := NewNormalizer(8)
	instant := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10 09:00:00", n.Display(instant))

	// Display is the inverse of zoneless parsing.
	back, err := n.Parse(n.Display(instant))
	assert.NoError(t, err)
	assert.True(t, instant.Equal(back))
}

func TestNormalizer_NegativeOffset(t *testing.T) {
	n := NewNormalizer(-5)
	got, err := n.Parse("2026-03-10 09:00:00")
	assert.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC).Equal(got))
}
