package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a raw value cannot be parsed into any
// supported timestamp form. It is non-fatal to the caller's batch.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Layouts that carry explicit zone or offset information; these are parsed
// directly as absolute instants.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z0700",
}

// Layouts without zone information; these are interpreted as local
// wall-clock time at the deployment's fixed offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

// Normalizer converts raw collector timestamps into canonical UTC instants.
// The deployment-wide offset is a constant number of hours from UTC, not a
// timezone-database lookup; there is no daylight-saving adjustment.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer builds a Normalizer for a fixed UTC offset in hours.
func NewNormalizer(offsetHours int) *Normalizer {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Normalizer{loc: time.FixedZone(name, offsetHours*3600)}
}

// Parse converts a raw timestamp value into a canonical UTC instant. Values
// with explicit zone information are taken as-is; zoneless values are read
// as local wall-clock time at the fixed offset. Plain integers are accepted
// as unix epoch seconds.
func (n *Normalizer) Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t.UTC(), nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// Shift returns the 8-hour shift label for an absolute instant, based on the
// local hour-of-day at the fixed offset.
func (n *Normalizer) Shift(t time.Time) string {
	hour := t.In(n.loc).Hour()
	switch {
	case hour >= 7 && hour < 15:
		return "Morning"
	case hour >= 15 && hour < 23:
		return "Evening"
	default:
		return "Night"
	}
}

// Display renders an instant as a local wall-clock string for outward-facing
// presentation. Never used for storage keys.
func (n *Normalizer) Display(t time.Time) string {
	return t.In(n.loc).Format("2006-01-02 15:04:05")
}
