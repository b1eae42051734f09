package models

import (
	"time"
)

// AuditEntry records an operator action for follow-up.
type AuditEntry struct {
	ID        string `gorm:"primaryKey;size:36"`
	Actor     string `gorm:"size:32;not null;index"`
	Action    string `gorm:"size:64;not null"`
	Target    string `gorm:"size:255"`
	CreatedAt time.Time
}
