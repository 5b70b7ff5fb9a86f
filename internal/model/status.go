package model

import "strings"

// Status is the closed set of machine states reported by collectors.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusOff      Status = "OFF"
	StatusDowntime Status = "DOWNTIME"
	StatusUnknown  Status = "UNKNOWN"
)

// ParseStatus coerces a raw status string into a Status. Anything outside
// the recognized set becomes StatusUnknown.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusRunning:
		return StatusRunning
	case StatusOff:
		return StatusOff
	case StatusDowntime:
		return StatusDowntime
	default:
		return StatusUnknown
	}
}

// Power reports whether the machine draws power in this status.
func (s Status) Power() bool {
	return s == StatusRunning || s == StatusDowntime
}

// Downtime reports whether this status counts as downtime.
func (s Status) Downtime() bool {
	return s == StatusDowntime
}
