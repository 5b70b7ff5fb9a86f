package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"factory-status-backend/internal/model"
)

// ErrNotFound is returned when a machine has never reported.
var ErrNotFound = errors.New("machine has no live state")

// ErrDuplicateRecord is returned by CreateRecord when the store's uniqueness
// constraint on (machine, instant) rejects the write. Callers treat it as a
// benign skip, never as a failure.
var ErrDuplicateRecord = errors.New("duplicate status record")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// UpsertMachines registers first contact and refreshes last-seen.
	UpsertMachines(ctx context.Context, machineIDs []string, seenAt time.Time) error

	// HasExactRecord reports whether a record with identical
	// (machine, instant, status) already exists.
	HasExactRecord(ctx context.Context, machine string, at time.Time, status model.Status) (bool, error)

	// HasNearbyRecord reports whether any record for the same
	// (machine, status) exists within the given window around the instant.
	HasNearbyRecord(ctx context.Context, machine string, at time.Time, status model.Status, window time.Duration) (bool, error)

	// CreateRecord appends one immutable record. A uniqueness-constraint
	// violation surfaces as ErrDuplicateRecord.
	CreateRecord(ctx context.Context, rec *model.StatusRecord) error

	// ApplyLiveUpdate runs the live-state transition for one accepted record
	// as a single atomic read-modify-write. It returns the resulting state
	// and whether the status differed from its predecessor.
	ApplyLiveUpdate(ctx context.Context, up LiveUpdate) (model.LiveState, bool, error)

	ListLiveStates(ctx context.Context) ([]model.LiveState, error)
	GetLiveState(ctx context.Context, machine string) (model.LiveState, error)
	ResetLiveState(ctx context.Context, machine string) error
	StatsOverview(ctx context.Context, now time.Time) (Stats, error)

	QueryRecords(ctx context.Context, q RecordQuery) ([]model.StatusRecord, error)
	SelectRecordsBefore(ctx context.Context, cutoff time.Time) ([]model.StatusRecord, error)
	DeleteRecords(ctx context.Context, ids []uint64) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertMachines creates registry rows for unseen machines and bumps
// last_seen for known ones.
func (s *gormStore) UpsertMachines(ctx context.Context, machineIDs []string, seenAt time.Time) error {
	if len(machineIDs) == 0 {
		return nil
	}
	machines := make([]model.Machine, 0, len(machineIDs))
	for _, id := range machineIDs {
		machines = append(machines, model.Machine{ID: id, LastSeen: seenAt})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
	}).Create(&machines).Error
	if err != nil {
		return fmt.Errorf("failed to upsert machines: %w", err)
	}
	return nil
}

func (s *gormStore) HasExactRecord(ctx context.Context, machine string, at time.Time, status model.Status) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("machine_id = ? AND recorded_at = ? AND status = ?", machine, at, status).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("exact-match check failed for machine %s: %w", machine, err)
	}
	return count > 0, nil
}

func (s *gormStore) HasNearbyRecord(ctx context.Context, machine string, at time.Time, status model.Status, window time.Duration) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("machine_id = ? AND status = ? AND recorded_at >= ? AND recorded_at <= ?",
			machine, status, at.Add(-window), at.Add(window)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("jitter-window check failed for machine %s: %w", machine, err)
	}
	return count > 0, nil
}

func (s *gormStore) CreateRecord(ctx context.Context, rec *model.StatusRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("failed to create status record for machine %s: %w", rec.MachineID, err)
	}
	return nil
}

// isUniqueViolation recognizes a uniqueness-constraint rejection across the
// supported drivers. The store's constraint is the sole cross-instance
// arbiter, so a concurrent writer can lose this race at any time.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// ApplyLiveUpdate applies the state machine for one accepted record. First
// contact is an insert-or-ignore: two instances racing on an unseen machine
// both succeed, the loser falling through to the normal transition path
// instead of surfacing a key conflict. For existing rows the row lock taken
// inside the transaction serializes concurrent updates for the same machine;
// updates for different machines are independent.
func (s *gormStore) ApplyLiveUpdate(ctx context.Context, up LiveUpdate) (model.LiveState, bool, error) {
	var state model.LiveState
	var changed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := model.LiveState{
			MachineID:     up.Machine,
			Status:        up.Status,
			Power:         up.Power,
			Downtime:      up.Downtime,
			Shift:         up.Shift,
			LastUpdated:   up.Instant,
			LastChange:    up.Instant,
			UptimeSeconds: 0,
			LastPolled:    up.PolledAt,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}},
			DoNothing: true,
		}).Create(&fresh)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			state = fresh
			changed = true
			return nil
		}

		query := tx.Where("machine_id = ?", up.Machine)
		// SQLite serializes writers on its own; row locks are a Postgres
		// concern.
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var prev model.LiveState
		if err := query.First(&prev).Error; err != nil {
			return err
		}

		delta := int64(up.Instant.Sub(prev.LastUpdated).Seconds())
		if delta < 0 {
			delta = 0
		}

		state = prev
		state.Status = up.Status
		state.Power = up.Power
		state.Downtime = up.Downtime
		state.Shift = up.Shift
		state.LastUpdated = up.Instant
		state.LastPolled = up.PolledAt

		if up.Status == model.StatusRunning && prev.Status == model.StatusRunning {
			// Uninterrupted RUNNING streak keeps accruing.
			state.UptimeSeconds = prev.UptimeSeconds + delta
		} else {
			state.UptimeSeconds = 0
		}

		changed = up.Status != prev.Status
		if changed {
			state.LastChange = up.Instant
		}

		return tx.Save(&state).Error
	})
	if err != nil {
		return model.LiveState{}, false, fmt.Errorf("failed to apply live update for machine %s: %w", up.Machine, err)
	}
	return state, changed, nil
}

func (s *gormStore) ListLiveStates(ctx context.Context) ([]model.LiveState, error) {
	var states []model.LiveState
	if err := s.db.WithContext(ctx).Order("machine_id ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list live states: %w", err)
	}
	return states, nil
}

func (s *gormStore) GetLiveState(ctx context.Context, machine string) (model.LiveState, error) {
	var state model.LiveState
	err := s.db.WithContext(ctx).Where("machine_id = ?", machine).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LiveState{}, ErrNotFound
	}
	if err != nil {
		return model.LiveState{}, fmt.Errorf("failed to get live state for machine %s: %w", machine, err)
	}
	return state, nil
}

// ResetLiveState removes the live snapshot for one machine. This is the only
// path that ever deletes a live-state row.
func (s *gormStore) ResetLiveState(ctx context.Context, machine string) error {
	res := s.db.WithContext(ctx).Where("machine_id = ?", machine).Delete(&model.LiveState{})
	if res.Error != nil {
		return fmt.Errorf("failed to reset live state for machine %s: %w", machine, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) StatsOverview(ctx context.Context, now time.Time) (Stats, error) {
	states, err := s.ListLiveStates(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalMachines: len(states),
		ByStatus:      make(map[model.Status]int),
		Connectivity:  make(map[model.Connectivity]int),
	}
	for i := range states {
		stats.ByStatus[states[i].Status]++
		stats.Connectivity[states[i].ConnectivityAt(now)]++
	}
	return stats, nil
}

func (s *gormStore) QueryRecords(ctx context.Context, q RecordQuery) ([]model.StatusRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	order := "recorded_at DESC"
	if q.Ascending {
		order = "recorded_at ASC"
	}

	tx := s.db.WithContext(ctx).Model(&model.StatusRecord{})
	if q.Machine != "" {
		tx = tx.Where("machine_id = ?", q.Machine)
	}
	if !q.From.IsZero() {
		tx = tx.Where("recorded_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		tx = tx.Where("recorded_at <= ?", q.To)
	}

	var records []model.StatusRecord
	if err := tx.Order(order).Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("historical query failed: %w", err)
	}
	return records, nil
}

func (s *gormStore) SelectRecordsBefore(ctx context.Context, cutoff time.Time) ([]model.StatusRecord, error) {
	var records []model.StatusRecord
	err := s.db.WithContext(ctx).
		Where("recorded_at <= ?", cutoff).
		Order("recorded_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select records before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return records, nil
}

// DeleteRecords removes records by identity. Used by the retention sweep
// only after the archive artifact write has durably succeeded.
func (s *gormStore) DeleteRecords(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&model.StatusRecord{}, ids)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete archived records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
