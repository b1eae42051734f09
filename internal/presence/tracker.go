// Package presence tracks cumulative online time per member and promotes
// long-standing, active members to rank roles.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/platform"
	"vip-bot/internal/store"
)

// Rank promotion thresholds, highest first so a member lands on the best
// rank they qualify for. Rank roles are granted only when they already
// exist in the community.
var Ranks = []Rank{
	{RoleName: "Elite", MinMembership: 60 * 24 * time.Hour, MinPresence: 200 * time.Hour},
	{RoleName: "Veteran", MinMembership: 30 * 24 * time.Hour, MinPresence: 100 * time.Hour},
}

type Rank struct {
	RoleName      string
	MinMembership time.Duration
	MinPresence   time.Duration
}

// Tracker owns the in-memory map of who is online since when; totals are
// persisted when a member goes offline.
type Tracker struct {
	store *store.PresenceStore
	gw    platform.Gateway
	now   func() time.Time

	mu          sync.Mutex
	onlineSince map[string]time.Time
}

func NewTracker(st *store.PresenceStore, gw platform.Gateway) *Tracker {
	return &Tracker{
		store:       st,
		gw:          gw,
		now:         time.Now,
		onlineSince: make(map[string]time.Time),
	}
}

// WithClock replaces the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// MemberOnline records the moment a member comes online. Repeated online
// signals keep the earliest start.
func (t *Tracker) MemberOnline(memberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.onlineSince[memberID]; !ok {
		t.onlineSince[memberID] = t.now()
	}
}

// MemberOffline closes the member's online session and adds its length to
// the stored total. An offline signal without a matching online start is
// ignored.
func (t *Tracker) MemberOffline(memberID string) error {
	t.mu.Lock()
	start, ok := t.onlineSince[memberID]
	delete(t.onlineSince, memberID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	seconds := t.now().Sub(start).Seconds()
	if err := t.store.AddPresence(memberID, seconds); err != nil {
		return err
	}
	logrus.Infof("Member %s was online for %.0f seconds", memberID, seconds)
	return nil
}

// Total returns the member's accumulated online time.
func (t *Tracker) Total(memberID string) (time.Duration, error) {
	seconds, err := t.store.TotalPresence(memberID)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// PromoteEligible grants rank roles to members who meet the membership
// and presence thresholds. Members already holding the rank are skipped;
// ranks whose role does not exist are skipped.
func (t *Tracker) PromoteEligible(ctx context.Context) error {
	members, err := t.gw.ListMembers(ctx)
	if err != nil {
		return err
	}
	now := t.now()
	for _, member := range members {
		total, err := t.Total(member.ID)
		if err != nil {
			return err
		}
		membership := now.Sub(member.JoinedAt)
		for _, rank := range Ranks {
			if membership <= rank.MinMembership || total <= rank.MinPresence {
				continue
			}
			role, err := t.gw.GetRole(ctx, rank.RoleName)
			if errors.Is(err, platform.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !member.HasRole(role.ID) {
				if err := t.gw.AddRoleToMember(ctx, member.ID, role.ID); err != nil {
					logrus.Errorf("Failed to promote %s to %s: %v", member.ID, rank.RoleName, err)
					break
				}
				logrus.Infof("Member %s promoted to %s", member.ID, rank.RoleName)
			}
			break
		}
	}
	return nil
}

// NextPromotion reports the highest rank not yet reached and how much
// more online time it needs. Returns false when every rank is reached.
func (t *Tracker) NextPromotion(memberID string) (Rank, time.Duration, bool, error) {
	total, err := t.Total(memberID)
	if err != nil {
		return Rank{}, 0, false, err
	}
	// Ranks are ordered highest first; the last unmet one is the next goal.
	for i := len(Ranks) - 1; i >= 0; i-- {
		if total <= Ranks[i].MinPresence {
			remaining := Ranks[i].MinPresence - total
			return Ranks[i], remaining, true, nil
		}
	}
	return Rank{}, 0, false, nil
}
