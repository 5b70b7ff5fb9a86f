package model

import "time"

// Staleness thresholds on the age of LastUpdated. Connectivity is derived
// on every read, never stored as ground truth.
const (
	OnlineWindow = 60 * time.Second
	StaleWindow  = 300 * time.Second
)

// Connectivity classifies how recently a machine has reported.
type Connectivity string

const (
	ConnectivityOnline  Connectivity = "online"
	ConnectivityStale   Connectivity = "stale"
	ConnectivityOffline Connectivity = "offline"
)

// LiveState is the single current-status snapshot per machine (hot table).
// Exactly one row per machine; created on first contact, deleted only by an
// explicit reset.
type LiveState struct {
	MachineID string `gorm:"primaryKey;size:64"`
	Status    Status `gorm:"size:16;not null"`
	Power     bool   `gorm:"not null"`
	Downtime  bool   `gorm:"not null"`
	Shift     string `gorm:"size:16"`
	// LastUpdated is the instant of the most recent accepted report.
	LastUpdated time.Time `gorm:"not null"`
	// LastChange is the instant the status last differed from its predecessor.
	LastChange time.Time `gorm:"not null"`
	// UptimeSeconds is the length of the current continuous RUNNING streak,
	// not cumulative runtime. It resets to 0 on any status transition.
	UptimeSeconds int64 `gorm:"not null"`
	// LastPolled is the receipt instant of the last input for this machine,
	// including non-changing polls.
	LastPolled time.Time `gorm:"not null"`
}

// ConnectivityAt derives the connectivity bucket from the age of LastUpdated.
func (s *LiveState) ConnectivityAt(now time.Time) Connectivity {
	age := now.Sub(s.LastUpdated)
	switch {
	case age < OnlineWindow:
		return ConnectivityOnline
	case age < StaleWindow:
		return ConnectivityStale
	default:
		return ConnectivityOffline
	}
}
