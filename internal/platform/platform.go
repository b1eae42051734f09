// Package platform abstracts the chat-platform capabilities the bot
// consumes: direct messages, channel posts, role management and the guild
// roster. The production implementation talks to Discord; tests use a
// scripted fake.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermissionDenied means the platform refused the operation (for
	// example the member has DMs disabled, or the bot lacks a permission).
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnavailable means the platform could not be reached or answered
	// with a transient failure.
	ErrUnavailable = errors.New("platform unavailable")
	// ErrNotFound means the member, role or channel does not exist.
	ErrNotFound = errors.New("not found")
)

type Member struct {
	ID       string
	Username string
	RoleIDs  []string
	JoinedAt time.Time
}

// Mention returns the platform mention string for the member.
func (m Member) Mention() string {
	return fmt.Sprintf("<@%s>", m.ID)
}

// HasRole reports whether the member currently holds the role.
func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID   string
	Name string
}

// Gateway is the capability surface of the chat platform, scoped to a
// single community.
type Gateway interface {
	SendDirectMessage(ctx context.Context, memberID, content string) error
	PostToChannel(ctx context.Context, channelID, content string) error

	GetRole(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, name string, color int) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	AddRoleToMember(ctx context.Context, memberID, roleID string) error
	RemoveRoleFromMember(ctx context.Context, memberID, roleID string) error

	ListMembers(ctx context.Context) ([]Member, error)
	ResolveMember(ctx context.Context, memberID string) (*Member, error)
	CommunityOwner(ctx context.Context) (*Member, error)
	MemberIsAdmin(ctx context.Context, memberID string) (bool, error)
}
