package ingest

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"factory-status-backend/internal/broadcast"
	"factory-status-backend/internal/model"
	"factory-status-backend/internal/notification"
	"factory-status-backend/internal/parse"
	"factory-status-backend/internal/store"
)

// jitterWindow collapses near-duplicate reports caused by collector clock
// drift: a record for the same (machine, status) within this distance of an
// existing one is a duplicate.
const jitterWindow = time.Second

// Result summarizes one processed batch. Records holds the saved records in
// acceptance order for downstream broadcast.
type Result struct {
	Saved      int                  `json:"saved"`
	Duplicates int                  `json:"duplicates"`
	Invalid    int                  `json:"invalid"`
	Records    []model.StatusRecord `json:"-"`
}

// Service is the ingestion deduplication engine. It normalizes raw reports,
// filters duplicates, appends records, drives the live-state engine and
// publishes change events.
type Service struct {
	store     store.Store
	norm      *parse.Normalizer
	notifier  broadcast.Notifier
	pool      *notification.WorkerPool
	chunkSize int
}

// NewService wires the engine. pool may be nil when push notifications are
// disabled.
func NewService(st store.Store, norm *parse.Normalizer, notifier broadcast.Notifier, pool *notification.WorkerPool, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	return &Service{
		store:     st,
		norm:      norm,
		notifier:  notifier,
		pool:      pool,
		chunkSize: chunkSize,
	}
}

type batchKey struct {
	machine string
	unix    int64
	status  model.Status
}

type candidate struct {
	machine  string
	instant  time.Time
	status   model.Status
	shift    string
	duration int
}

// ProcessBatch runs the full pipeline for one ordered batch. Invalid items
// are dropped individually; duplicates are counted and skipped; a store
// failure fails the whole operation. The batch is processed in fixed-size
// chunks with a cancellation check between chunks.
func (s *Service) ProcessBatch(ctx context.Context, reports []store.Report) (Result, error) {
	receivedAt := time.Now().UTC()

	var res Result
	seen := make(map[batchKey]struct{}, len(reports))
	candidates := make([]candidate, 0, len(reports))
	machineSet := make(map[string]struct{})

	for _, r := range reports {
		machine := strings.TrimSpace(r.Machine)
		if machine == "" {
			res.Invalid++
			log.Printf("Dropping report with missing machine identifier")
			continue
		}

		instant, err := s.norm.Parse(string(r.Timestamp))
		if err != nil {
			res.Invalid++
			log.Printf("Dropping report for machine %s: %v", machine, err)
			continue
		}
		// The uniqueness key works at one-second resolution; round before
		// anything compares or stores the instant.
		instant = instant.Round(time.Second)

		status := model.ParseStatus(r.Status)

		shift := strings.TrimSpace(r.Shift)
		if shift == "" {
			shift = s.norm.Shift(instant)
		}

		duration := 0
		if r.DurationSeconds != nil && *r.DurationSeconds > 0 {
			duration = *r.DurationSeconds
		}

		// In-batch collapse: the earliest item with this key wins.
		key := batchKey{machine: machine, unix: instant.Unix(), status: status}
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		machineSet[machine] = struct{}{}
		candidates = append(candidates, candidate{
			machine:  machine,
			instant:  instant,
			status:   status,
			shift:    shift,
			duration: duration,
		})
	}

	if len(candidates) == 0 {
		return res, nil
	}

	machineIDs := make([]string, 0, len(machineSet))
	for id := range machineSet {
		machineIDs = append(machineIDs, id)
	}
	if err := s.store.UpsertMachines(ctx, machineIDs, receivedAt); err != nil {
		return res, err
	}

	for start := 0; start < len(candidates); start += s.chunkSize {
		// Yield between chunks so the caller's cancellation is honored and
		// buffers can be reclaimed.
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + s.chunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if err := s.processChunk(ctx, candidates[start:end], receivedAt, &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (s *Service) processChunk(ctx context.Context, chunk []candidate, receivedAt time.Time, res *Result) error {
	for _, c := range chunk {
		exact, err := s.store.HasExactRecord(ctx, c.machine, c.instant, c.status)
		if err != nil {
			return err
		}
		if exact {
			res.Duplicates++
			continue
		}

		nearby, err := s.store.HasNearbyRecord(ctx, c.machine, c.instant, c.status, jitterWindow)
		if err != nil {
			return err
		}
		if nearby {
			res.Duplicates++
			continue
		}

		rec := model.StatusRecord{
			MachineID:       c.machine,
			RecordedAt:      c.instant,
			Status:          c.status,
			Power:           c.status.Power(),
			Downtime:        c.status.Downtime(),
			Shift:           c.shift,
			DurationSeconds: c.duration,
			CreatedAt:       receivedAt,
		}
		if err := s.store.CreateRecord(ctx, &rec); err != nil {
			if errors.Is(err, store.ErrDuplicateRecord) {
				// Lost the storage race to a concurrent writer; benign.
				res.Duplicates++
				continue
			}
			return err
		}
		res.Saved++
		res.Records = append(res.Records, rec)

		state, changed, err := s.store.ApplyLiveUpdate(ctx, store.LiveUpdate{
			Machine:  c.machine,
			Status:   c.status,
			Power:    c.status.Power(),
			Downtime: c.status.Downtime(),
			Shift:    c.shift,
			Instant:  c.instant,
			PolledAt: receivedAt,
		})
		if err != nil {
			return err
		}

		if s.notifier != nil {
			s.notifier.Publish(broadcast.Event{
				Type:             broadcast.EventMachineUpdate,
				Machine:          c.machine,
				Status:           c.status,
				Shift:            c.shift,
				DisplayTimestamp: s.norm.Display(c.instant),
			})
		}

		if s.pool != nil && changed && state.Status == model.StatusDowntime {
			s.pool.Dispatch(c.machine)
		}
	}
	return nil
}
