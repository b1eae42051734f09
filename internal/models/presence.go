package models

import (
	"time"
)

// UserPresence accumulates total online time in seconds.
type UserPresence struct {
	MemberID     string  `gorm:"primaryKey;size:32"`
	TotalSeconds float64 `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}
