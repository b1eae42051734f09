package models

import (
	"time"
)

type UserTag struct {
	ID        uint   `gorm:"primaryKey"`
	MemberID  string `gorm:"size:32;not null;uniqueIndex:idx_member_tag"`
	Tag       string `gorm:"size:20;not null;uniqueIndex:idx_member_tag"`
	CreatedAt time.Time
}

// TagRoleRule lists the role names allowed to manage a tag, stored as a
// comma-separated string.
type TagRoleRule struct {
	Tag       string `gorm:"primaryKey;size:20"`
	Roles     string `gorm:"size:512"`
	UpdatedAt time.Time
}
