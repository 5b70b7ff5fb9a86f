package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"factory-status-backend/config"
	"factory-status-backend/internal/archive"
	"factory-status-backend/internal/store"
)

// deleteChunkSize bounds one delete statement; the sweeper checks for
// shutdown between chunks.
const deleteChunkSize = 500

// Sweeper periodically moves records older than the retention horizon into
// an archive artifact and then deletes them from the primary store,
// write-before-delete.
type Sweeper struct {
	store  store.Store
	writer archive.Writer
	months int
	hour   int
	minute int
}

// NewSweeper validates the schedule and builds a sweeper.
func NewSweeper(cfg *config.RetentionConfig, st store.Store, w archive.Writer) (*Sweeper, error) {
	hour, minute, err := config.ParseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return nil, err
	}
	months := cfg.Months
	if months <= 0 {
		months = 3
	}
	return &Sweeper{
		store:  st,
		writer: w,
		months: months,
		hour:   hour,
		minute: minute,
	}, nil
}

// Run executes the daily schedule until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("Starting retention sweeper (daily at %02d:%02d, horizon %d months)...", s.hour, s.minute, s.months)

	for {
		wait := time.Until(s.nextRun(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Retention sweeper shutting down.")
			return
		case <-timer.C:
			if _, err := s.SweepOnce(ctx, time.Now().UTC()); err != nil {
				log.Printf("Retention sweep failed: %v", err)
			}
		}
	}
}

// nextRun returns the next scheduled time-of-day strictly after now.
func (s *Sweeper) nextRun(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// SweepOnce performs one archive-then-delete pass and returns the number of
// records archived. The artifact write must durably succeed before any
// deletion happens; if it fails, the sweep aborts with zero deletions and
// the same records are re-selected on the next scheduled run.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.AddDate(0, -s.months, 0)

	records, err := s.store.SelectRecordsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		log.Printf("Retention sweep: nothing older than %s, no-op.", cutoff.Format(time.RFC3339))
		return 0, nil
	}

	name := archive.Name(cutoff, now)
	batch := archive.Batch{
		CutoffDate: cutoff.UTC().Format("2006-01-02"),
		SweptAt:    now.UTC(),
		Records:    records,
	}
	if err := s.writer.Write(ctx, name, batch); err != nil {
		return 0, fmt.Errorf("archive write failed, aborting sweep with zero deletions: %w", err)
	}
	log.Printf("Retention sweep: archived %d records to %s.", len(records), name)

	ids := make([]uint64, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}

	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-delete is safe: the artifact already exists and
			// the survivors are re-archived on the next run.
			return len(records), err
		}
		end := start + deleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := s.store.DeleteRecords(ctx, ids[start:end])
		if err != nil {
			return len(records), err
		}
		deleted += n
	}

	log.Printf("Retention sweep complete: %d records archived, %d deleted.", len(records), deleted)
	return len(records), nil
}
