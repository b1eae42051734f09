// Package tags manages role-gated member labels: who may assign or remove
// a tag is decided by the tag's role rule.
package tags

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/platform"
	"vip-bot/internal/store"
)

var (
	ErrInvalidTag      = errors.New("tags must be between 1 and 20 alphanumeric characters")
	ErrNotAuthorized   = errors.New("not authorized to manage this tag")
	ErrAlreadyAssigned = errors.New("tag already assigned")
	ErrNotAssigned     = errors.New("tag not assigned")
)

type Service struct {
	tags *store.TagStore
	gw   platform.Gateway
}

func NewService(tags *store.TagStore, gw platform.Gateway) *Service {
	return &Service{tags: tags, gw: gw}
}

func validateTag(tag string) error {
	if len(tag) < 1 || len(tag) > 20 {
		return ErrInvalidTag
	}
	for _, r := range tag {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			return ErrInvalidTag
		}
	}
	return nil
}

// canManage reports whether the actor holds any role the tag's rule
// allows.
func (s *Service) canManage(ctx context.Context, actor platform.Member, tag string) (bool, error) {
	allowed, err := s.tags.TagRoles(tag)
	if err != nil {
		return false, err
	}
	roles, err := s.gw.ListRoles(ctx)
	if err != nil {
		return false, err
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	for _, roleID := range actor.RoleIDs {
		for _, want := range allowed {
			if names[roleID] == want {
				return true, nil
			}
		}
	}
	return false, nil
}

// Assign puts the tag on the target member after validating it and
// checking the actor's roles against the tag rule.
func (s *Service) Assign(ctx context.Context, actor, target platform.Member, tag string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	ok, err := s.canManage(ctx, actor, tag)
	if err != nil {
		return err
	}
	if !ok {
		logrus.Warnf("Unauthorized tag assignment attempt by %s for tag %q", actor.ID, tag)
		return fmt.Errorf("%w: %q", ErrNotAuthorized, tag)
	}
	added, err := s.tags.AddTag(target.ID, tag)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: %q", ErrAlreadyAssigned, tag)
	}
	logrus.Infof("Tag %q assigned to %s by %s", tag, target.ID, actor.ID)
	return nil
}

// Remove takes the tag off the target member, with the same role gate as
// Assign.
func (s *Service) Remove(ctx context.Context, actor, target platform.Member, tag string) error {
	ok, err := s.canManage(ctx, actor, tag)
	if err != nil {
		return err
	}
	if !ok {
		logrus.Warnf("Unauthorized tag removal attempt by %s for tag %q", actor.ID, tag)
		return fmt.Errorf("%w: %q", ErrNotAuthorized, tag)
	}
	removed, err := s.tags.RemoveTag(target.ID, tag)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %q", ErrNotAssigned, tag)
	}
	logrus.Infof("Tag %q removed from %s by %s", tag, target.ID, actor.ID)
	return nil
}

// SetRule declares which role names may manage the tag.
func (s *Service) SetRule(tag string, roles []string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	return s.tags.SetTagRoles(tag, roles)
}

func (s *Service) MemberTags(memberID string) ([]string, error) {
	return s.tags.UserTags(memberID)
}

func (s *Service) AllTags() ([]string, error) {
	return s.tags.AllTags()
}
