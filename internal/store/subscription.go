package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vip-bot/internal/models"
)

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Put upserts the subscription for a member. An existing expiry is
// replaced, not extended.
func (s *SubscriptionStore) Put(memberID string, expiryAt time.Time) error {
	sub := models.Subscription{MemberID: memberID, ExpiryAt: expiryAt}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expiry_at", "updated_at"}),
	}).Create(&sub).Error
}

// Get returns the stored expiry, or ErrNotFound.
func (s *SubscriptionStore) Get(memberID string) (time.Time, error) {
	var sub models.Subscription
	if err := s.db.First(&sub, "member_id = ?", memberID).Error; err != nil {
		return time.Time{}, translate(err)
	}
	return sub.ExpiryAt, nil
}

func (s *SubscriptionStore) Delete(memberID string) error {
	return s.db.Delete(&models.Subscription{}, "member_id = ?", memberID).Error
}

func (s *SubscriptionStore) ListAll() ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := s.db.Order("expiry_at").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// Classify partitions every stored subscription into active or expired by
// comparing its expiry to now. Every record lands in exactly one side.
func (s *SubscriptionStore) Classify(now time.Time) (active, expired []models.Subscription, err error) {
	subs, err := s.ListAll()
	if err != nil {
		return nil, nil, err
	}
	for _, sub := range subs {
		if sub.ExpiryAt.After(now) {
			active = append(active, sub)
		} else {
			expired = append(expired, sub)
		}
	}
	return active, expired, nil
}

// ExpiringBetween returns subscriptions whose expiry falls inside the
// window, for pre-expiry warnings.
func (s *SubscriptionStore) ExpiringBetween(start, end time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := s.db.Where("expiry_at BETWEEN ? AND ?", start, end).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
