// Package store holds the gorm-backed repositories for subscriptions,
// tags, presence totals and the audit trail.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist. Store
// unavailability errors are returned as-is and must be propagated by
// callers.
var ErrNotFound = errors.New("record not found")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
