package store

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vip-bot/internal/models"
)

// DefaultTagRole is the role allowed to manage a tag with no explicit rule.
const DefaultTagRole = "Survivor"

type TagStore struct {
	db *gorm.DB
}

func NewTagStore(db *gorm.DB) *TagStore {
	return &TagStore{db: db}
}

// AddTag assigns the tag to the member. Returns false when the member
// already carries it.
func (s *TagStore) AddTag(memberID, tag string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.UserTag{}).Where("member_id = ? AND tag = ?", memberID, tag).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := s.db.Create(&models.UserTag{MemberID: memberID, Tag: tag}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// RemoveTag removes the tag from the member. Returns false when the member
// did not carry it.
func (s *TagStore) RemoveTag(memberID, tag string) (bool, error) {
	res := s.db.Delete(&models.UserTag{}, "member_id = ? AND tag = ?", memberID, tag)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *TagStore) UserTags(memberID string) ([]string, error) {
	var tags []string
	err := s.db.Model(&models.UserTag{}).Where("member_id = ?", memberID).Order("tag").Pluck("tag", &tags).Error
	return tags, err
}

func (s *TagStore) AllTags() ([]string, error) {
	var tags []string
	err := s.db.Model(&models.UserTag{}).Distinct("tag").Order("tag").Pluck("tag", &tags).Error
	return tags, err
}

// TagRoles returns the role names allowed to manage the tag, falling back
// to the default rule when none is stored.
func (s *TagStore) TagRoles(tag string) ([]string, error) {
	var rule models.TagRoleRule
	err := s.db.First(&rule, "tag = ?", tag).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return []string{DefaultTagRole}, nil
		}
		return nil, err
	}
	return strings.Split(rule.Roles, ","), nil
}

func (s *TagStore) SetTagRoles(tag string, roles []string) error {
	rule := models.TagRoleRule{Tag: tag, Roles: strings.Join(roles, ",")}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"roles", "updated_at"}),
	}).Create(&rule).Error
}

// AllTagRoleRules returns every stored rule keyed by tag.
func (s *TagStore) AllTagRoleRules() (map[string][]string, error) {
	var rules []models.TagRoleRule
	if err := s.db.Find(&rules).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(rules))
	for _, r := range rules {
		out[r.Tag] = strings.Split(r.Roles, ",")
	}
	return out, nil
}
