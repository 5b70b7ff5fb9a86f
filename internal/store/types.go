package store

import (
	"encoding/json"
	"fmt"
	"time"

	"factory-status-backend/internal/model"
)

// RawTimestamp accepts either a JSON string or a numeric epoch value and
// preserves it as text for the normalizer to interpret.
type RawTimestamp string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawTimestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RawTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*r = RawTimestamp(n.String())
		return nil
	}
	return fmt.Errorf("timestamp must be a string or a number")
}

// Report is a single raw status submission from a floor collector.
type Report struct {
	Timestamp       RawTimestamp `json:"timestamp"`
	Machine         string       `json:"machine"`
	Status          string       `json:"status"`
	DurationSeconds *int         `json:"durationSeconds,omitempty"`
	Shift           string       `json:"shift,omitempty"`
}

// LiveUpdate carries one accepted record into the live-state engine.
type LiveUpdate struct {
	Machine  string
	Status   model.Status
	Power    bool
	Downtime bool
	Shift    string
	// Instant is the canonical UTC instant of the report.
	Instant time.Time
	// PolledAt is the ingestion receipt instant.
	PolledAt time.Time
}

// RecordQuery filters the historical time series.
type RecordQuery struct {
	Machine   string
	From      time.Time
	To        time.Time
	Limit     int
	Ascending bool
}

// MaxQueryLimit caps historical query result counts for safety.
const MaxQueryLimit = 5000

// Stats is the live-state overview: a status histogram plus connectivity
// bucket counts derived at read time.
type Stats struct {
	TotalMachines int                        `json:"totalMachines"`
	ByStatus      map[model.Status]int       `json:"byStatus"`
	Connectivity  map[model.Connectivity]int `json:"connectivity"`
}
