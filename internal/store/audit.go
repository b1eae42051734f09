package store

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"vip-bot/internal/models"
)

type AuditStore struct {
	db *gorm.DB
}

func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(actor, action, target string) error {
	return s.db.Create(&models.AuditEntry{
		ID:     uuid.NewString(),
		Actor:  actor,
		Action: action,
		Target: target,
	}).Error
}

func (s *AuditStore) ByActor(actor string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.Where("actor = ?", actor).Order("created_at").Find(&entries).Error
	return entries, err
}
