// Package platformtest provides a scripted in-memory Gateway for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"vip-bot/internal/platform"
)

type Message struct {
	Target  string
	Content string
}

// Fake is an in-memory Gateway. Error queues let tests script failures:
// each call pops the next error for that target; an empty queue means
// success. Role mutations are reflected in the member roster, so a second
// reconciliation observes the first one's effect.
type Fake struct {
	mu sync.Mutex

	members map[string]*platform.Member
	roles   []platform.Role
	ownerID string
	admins  map[string]bool

	dmErrs      map[string][]error
	channelErrs []error
	roleErrs    []error

	DMs        []Message
	Posts      []Message
	RoleAdds   []Message
	RoleDrops  []Message
	nextRoleID int
}

func NewFake() *Fake {
	return &Fake{
		members: make(map[string]*platform.Member),
		admins:  make(map[string]bool),
		dmErrs:  make(map[string][]error),
	}
}

func (f *Fake) AddMember(m platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := m
	copied.RoleIDs = append([]string(nil), m.RoleIDs...)
	f.members[m.ID] = &copied
}

func (f *Fake) RemoveMember(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, id)
}

func (f *Fake) SetOwner(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownerID = id
}

func (f *Fake) SetAdmin(id string, admin bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[id] = admin
}

func (f *Fake) AddRole(role platform.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, role)
}

// QueueDMError scripts the next SendDirectMessage results for a member.
func (f *Fake) QueueDMError(memberID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmErrs[memberID] = append(f.dmErrs[memberID], errs...)
}

// QueueChannelError scripts the next PostToChannel results.
func (f *Fake) QueueChannelError(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelErrs = append(f.channelErrs, errs...)
}

// QueueRoleError scripts the next role mutation results.
func (f *Fake) QueueRoleError(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleErrs = append(f.roleErrs, errs...)
}

func (f *Fake) SendDirectMessage(_ context.Context, memberID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.dmErrs[memberID]; len(queue) > 0 {
		err := queue[0]
		f.dmErrs[memberID] = queue[1:]
		if err != nil {
			return err
		}
	}
	f.DMs = append(f.DMs, Message{Target: memberID, Content: content})
	return nil
}

func (f *Fake) PostToChannel(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channelErrs) > 0 {
		err := f.channelErrs[0]
		f.channelErrs = f.channelErrs[1:]
		if err != nil {
			return err
		}
	}
	f.Posts = append(f.Posts, Message{Target: channelID, Content: content})
	return nil
}

func (f *Fake) GetRole(_ context.Context, name string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles {
		if r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, fmt.Errorf("role %q: %w", name, platform.ErrNotFound)
}

func (f *Fake) CreateRole(_ context.Context, name string, _ int) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRoleID++
	role := platform.Role{ID: fmt.Sprintf("role-%d", f.nextRoleID), Name: name}
	f.roles = append(f.roles, role)
	return &role, nil
}

func (f *Fake) ListRoles(_ context.Context) ([]platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Role(nil), f.roles...), nil
}

func (f *Fake) AddRoleToMember(_ context.Context, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popRoleErr(); err != nil {
		return err
	}
	m, ok := f.members[memberID]
	if !ok {
		return platform.ErrNotFound
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	f.RoleAdds = append(f.RoleAdds, Message{Target: memberID, Content: roleID})
	return nil
}

func (f *Fake) RemoveRoleFromMember(_ context.Context, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popRoleErr(); err != nil {
		return err
	}
	m, ok := f.members[memberID]
	if !ok {
		return platform.ErrNotFound
	}
	kept := m.RoleIDs[:0]
	for _, id := range m.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	f.RoleDrops = append(f.RoleDrops, Message{Target: memberID, Content: roleID})
	return nil
}

func (f *Fake) popRoleErr() error {
	if len(f.roleErrs) > 0 {
		err := f.roleErrs[0]
		f.roleErrs = f.roleErrs[1:]
		return err
	}
	return nil
}

func (f *Fake) ListMembers(_ context.Context) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Member, 0, len(f.members))
	for _, m := range f.members {
		out = append(out, snapshot(m))
	}
	return out, nil
}

func (f *Fake) ResolveMember(_ context.Context, memberID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, platform.ErrNotFound)
	}
	s := snapshot(m)
	return &s, nil
}

func (f *Fake) CommunityOwner(ctx context.Context) (*platform.Member, error) {
	f.mu.Lock()
	ownerID := f.ownerID
	f.mu.Unlock()
	if ownerID == "" {
		return nil, fmt.Errorf("owner: %w", platform.ErrNotFound)
	}
	return f.ResolveMember(ctx, ownerID)
}

func (f *Fake) MemberIsAdmin(_ context.Context, memberID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[memberID] || f.ownerID == memberID, nil
}

func snapshot(m *platform.Member) platform.Member {
	s := *m
	s.RoleIDs = append([]string(nil), m.RoleIDs...)
	return s
}
