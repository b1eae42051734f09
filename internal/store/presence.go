package store

import (
	"errors"

	"gorm.io/gorm"

	"vip-bot/internal/models"
)

type PresenceStore struct {
	db *gorm.DB
}

func NewPresenceStore(db *gorm.DB) *PresenceStore {
	return &PresenceStore{db: db}
}

// AddPresence accumulates seconds of online time for the member.
func (s *PresenceStore) AddPresence(memberID string, seconds float64) error {
	var p models.UserPresence
	err := s.db.First(&p, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.UserPresence{MemberID: memberID, TotalSeconds: seconds}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&p).Update("total_seconds", p.TotalSeconds+seconds).Error
}

// TotalPresence returns the accumulated online time in seconds, zero when
// the member has none recorded.
func (s *PresenceStore) TotalPresence(memberID string) (float64, error) {
	var p models.UserPresence
	err := s.db.First(&p, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.TotalSeconds, nil
}
