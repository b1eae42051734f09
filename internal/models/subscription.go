package models

import (
	"time"
)

// Subscription holds the VIP expiry for one member. One row per member;
// granting again replaces the expiry rather than extending it.
type Subscription struct {
	MemberID  string    `gorm:"primaryKey;size:32"`
	ExpiryAt  time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
