package model

import "time"

// StatusRecord is one immutable time-series data point for a machine at an
// instant (cold table). The unique index on (machine_id, recorded_at) is the
// final arbiter of uniqueness at one-second resolution; the ingest layer
// rounds instants to the second before writing.
type StatusRecord struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MachineID       string    `gorm:"size:64;not null;uniqueIndex:idx_records_machine_instant,priority:1" json:"machine"`
	RecordedAt      time.Time `gorm:"not null;uniqueIndex:idx_records_machine_instant,priority:2;index" json:"recordedAt"`
	Status          Status    `gorm:"size:16;not null" json:"status"`
	Power           bool      `gorm:"not null" json:"power"`
	Downtime        bool      `gorm:"not null" json:"downtime"`
	Shift           string    `gorm:"size:16;not null" json:"shift"`
	DurationSeconds int       `gorm:"not null" json:"durationSeconds"`
	CreatedAt       time.Time `gorm:"not null" json:"createdAt"`
}
