package model

import "time"

// Machine is the registry row for a collector-reported machine. First
// contact creates it; it only carries identity and seen timestamps.
type Machine struct {
	ID        string    `gorm:"primaryKey;size:64"`
	LastSeen  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
