package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factory-status-backend/config"
	"factory-status-backend/internal/archive"
	"factory-status-backend/internal/model"
	"factory-status-backend/internal/store"
)

// failingWriter deterministically rejects every artifact write.
type failingWriter struct{}

func (failingWriter) Write(ctx context.Context, name string, batch archive.Batch) error {
	return errors.New("archive backend unavailable")
}

func newTestStore(t *testing.T) store.Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(&model.Machine{}, &model.StatusRecord{}, &model.LiveState{}))
	return store.NewGormStore(db)
}

func newSweeper(t *testing.T, st store.Store, w archive.Writer) *Sweeper {
	cfg := &config.RetentionConfig{TimeOfDay: "03:30", Months: 3}
	s, err := NewSweeper(cfg, st, w)
	require.NoError(t, err)
	return s
}

func seedRecord(t *testing.T, st store.Store, machine string, at time.Time) {
	t.Helper()
	require.NoError(t, st.CreateRecord(context.Background(), &model.StatusRecord{
		MachineID:  machine,
		RecordedAt: at,
		Status:     model.StatusRunning,
		Power:      true,
		Shift:      "Morning",
		CreatedAt:  at,
	}))
}

func countAll(t *testing.T, st store.Store) int64 {
	var count int64
	require.NoError(t, st.DB().Model(&model.StatusRecord{}).Count(&count).Error)
	return count
}

func TestSweepOnce_ArchivesThenDeletes(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	w, err := archive.NewFileWriter(dir)
	require.NoError(t, err)
	sweeper := newSweeper(t, st, w)

	now := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	cutoff := now.AddDate(0, -3, 0)

	seedRecord(t, st, "M1", cutoff.Add(-24*time.Hour))
	seedRecord(t, st, "M2", cutoff.Add(-time.Hour))
	seedRecord(t, st, "M1", cutoff.Add(time.Hour)) // inside the horizon, must survive

	archived, err := sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, int64(1), countAll(t, st))

	// The artifact holds the selected records verbatim.
	name := archive.Name(cutoff, now)
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var batch archive.Batch
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch.Records, 2)
	assert.Equal(t, cutoff.UTC().Format("2006-01-02"), batch.CutoffDate)

	// Live state is untouched by retention: seed one and sweep again.
	_, _, err = st.ApplyLiveUpdate(context.Background(), store.LiveUpdate{
		Machine: "M1", Status: model.StatusRunning, Power: true,
		Instant: now, PolledAt: now,
	})
	require.NoError(t, err)

	archivedAgain, err := sweeper.SweepOnce(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, archivedAgain, "immediate re-run must be a no-op")
	_, err = st.GetLiveState(context.Background(), "M1")
	assert.NoError(t, err)
}

func TestSweepOnce_EmptySelectionIsNoOp(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	w, err := archive.NewFileWriter(dir)
	require.NoError(t, err)
	sweeper := newSweeper(t, st, w)

	now := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	seedRecord(t, st, "M1", now.Add(-time.Hour))

	archived, err := sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no artifact is written for an empty selection")
}

func TestSweepOnce_ArchiveWriteFailureDeletesNothing(t *testing.T) {
	st := newTestStore(t)
	sweeper := newSweeper(t, st, failingWriter{})

	now := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	seedRecord(t, st, "M1", now.AddDate(0, -4, 0))
	seedRecord(t, st, "M2", now.AddDate(0, -5, 0))

	_, err := sweeper.SweepOnce(context.Background(), now)
	assert.Error(t, err)
	assert.Equal(t, int64(2), countAll(t, st), "no record may be deleted when the archive write fails")

	// The records stay eligible: a later run with a working writer picks
	// them up into a differently named artifact.
	dir := t.TempDir()
	w, err := archive.NewFileWriter(dir)
	require.NoError(t, err)
	sweeper = newSweeper(t, st, w)

	archived, err := sweeper.SweepOnce(context.Background(), now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, int64(0), countAll(t, st))
}

func TestNextRun(t *testing.T) {
	st := newTestStore(t)
	sweeper := newSweeper(t, st, failingWriter{})

	before := time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC), sweeper.nextRun(before))

	after := time.Date(2026, 9, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 2, 3, 30, 0, 0, time.UTC), sweeper.nextRun(after))

	exact := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 2, 3, 30, 0, 0, time.UTC), sweeper.nextRun(exact))
}

func TestNewSweeper_RejectsBadSchedule(t *testing.T) {
	st := newTestStore(t)
	_, err := NewSweeper(&config.RetentionConfig{TimeOfDay: "25:00"}, st, failingWriter{})
	assert.Error(t, err)
}
