// Package vip owns the subscription lifecycle: it keeps each member's VIP
// role in agreement with the stored expiry and drives the notices around
// every transition.
package vip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/duration"
	"vip-bot/internal/messaging"
	"vip-bot/internal/models"
	"vip-bot/internal/platform"
	"vip-bot/internal/store"
)

// RoleName is the privileged role looked up by name and created on first
// need.
const RoleName = "VIP"

const roleColor = 0xF1C40F // gold

// ErrInconsistentState reports a (subscription, role) combination the
// state table does not cover. It is fatal to the current reconciliation.
var ErrInconsistentState = errors.New("inconsistent subscription state")

const (
	msgWelcome = "You have been granted the VIP role! Enjoy your exclusive benefits and stay connected."
	msgExpired = "Your VIP subscription has expired, and the VIP role has been removed."
	msgRevoked = "Your VIP role has been removed."
)

type Engine struct {
	subs     *store.SubscriptionStore
	gw       platform.Gateway
	notifier *messaging.Notifier
	now      func() time.Time

	mu          sync.Mutex
	memberLocks map[string]*sync.Mutex
}

func NewEngine(subs *store.SubscriptionStore, gw platform.Gateway, notifier *messaging.Notifier) *Engine {
	return &Engine{
		subs:        subs,
		gw:          gw,
		notifier:    notifier,
		now:         time.Now,
		memberLocks: make(map[string]*sync.Mutex),
	}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// lockMember serializes reconciliation per member. Different members
// proceed in parallel.
func (e *Engine) lockMember(memberID string) func() {
	e.mu.Lock()
	l, ok := e.memberLocks[memberID]
	if !ok {
		l = &sync.Mutex{}
		e.memberLocks[memberID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Reconcile makes the member's live role state agree with the stored
// expiry. Calling it twice with no intervening change makes the second
// call a no-op. Returns platform.ErrNotFound when the member is not in
// the community.
func (e *Engine) Reconcile(ctx context.Context, memberID string) error {
	unlock := e.lockMember(memberID)
	defer unlock()
	member, err := e.gw.ResolveMember(ctx, memberID)
	if err != nil {
		return err
	}
	return e.reconcileMember(ctx, *member)
}

// reconcileMember applies the state table for one member. Callers must
// hold the member lock. Role and store mutations commit before any
// notification; a failed notice is logged, never rolled back.
func (e *Engine) reconcileMember(ctx context.Context, member platform.Member) error {
	role, err := e.ensureRole(ctx)
	if err != nil {
		return err
	}
	held := member.HasRole(role.ID)

	expiry, err := e.subs.Get(member.ID)
	hasSub := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		hasSub = false
	}
	now := e.now()

	switch {
	case !hasSub && !held:
		return nil

	case !hasSub && held:
		if err := e.gw.RemoveRoleFromMember(ctx, member.ID, role.ID); err != nil {
			return err
		}
		logrus.Infof("Removed VIP role from %s: no subscription on record", member.ID)
		e.notify(ctx, member, msgExpired)
		return nil

	case expiry.After(now) && !held:
		if err := e.gw.AddRoleToMember(ctx, member.ID, role.ID); err != nil {
			return err
		}
		logrus.Infof("Granted VIP role to %s, valid until %s", member.ID, expiry.Format(time.RFC3339))
		e.notify(ctx, member, msgWelcome)
		return nil

	case expiry.After(now) && held:
		return nil

	case !expiry.After(now) && held:
		if err := e.gw.RemoveRoleFromMember(ctx, member.ID, role.ID); err != nil {
			return err
		}
		if err := e.subs.Delete(member.ID); err != nil {
			return err
		}
		logrus.Infof("Removed VIP role from %s: subscription expired %s", member.ID, expiry.Format(time.RFC3339))
		e.notify(ctx, member, msgExpired)
		return nil

	case !expiry.After(now) && !held:
		// Role already absent; just clean up the record, no notice.
		return e.subs.Delete(member.ID)

	default:
		return fmt.Errorf("%w: member %s, expiry %v, role held %v", ErrInconsistentState, member.ID, expiry, held)
	}
}

// Grant parses the duration, stores the new expiry and reconciles. The
// duration is validated before anything is persisted; an existing
// subscription is replaced. Returns the computed expiry.
func (e *Engine) Grant(ctx context.Context, memberID, durationStr string) (time.Time, error) {
	span, err := duration.Parse(durationStr)
	if err != nil {
		return time.Time{}, err
	}

	unlock := e.lockMember(memberID)
	defer unlock()

	member, err := e.gw.ResolveMember(ctx, memberID)
	if err != nil {
		return time.Time{}, err
	}

	expiry := span.AddTo(e.now())
	if err := e.subs.Put(memberID, expiry); err != nil {
		return time.Time{}, err
	}
	logrus.Infof("Added VIP subscription for %s until %s", memberID, expiry.Format(time.RFC3339))

	if err := e.reconcileMember(ctx, *member); err != nil {
		return time.Time{}, err
	}
	return expiry, nil
}

// Revoke unconditionally removes the role if held, deletes the record if
// present and sends the member a revocation notice, whether or not a
// subscription existed.
func (e *Engine) Revoke(ctx context.Context, memberID string) error {
	unlock := e.lockMember(memberID)
	defer unlock()

	member, err := e.gw.ResolveMember(ctx, memberID)
	if err != nil {
		return err
	}
	role, err := e.ensureRole(ctx)
	if err != nil {
		return err
	}
	if member.HasRole(role.ID) {
		if err := e.gw.RemoveRoleFromMember(ctx, memberID, role.ID); err != nil {
			return err
		}
	}
	if err := e.subs.Delete(memberID); err != nil {
		return err
	}
	logrus.Infof("Removed VIP subscription for %s", memberID)
	e.notify(ctx, *member, msgRevoked)
	return nil
}

// SweepExpired reconciles every expired subscription whose member is
// still in the community and returns how many were processed. Records of
// members who left stay untouched until they rejoin.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	_, expired, err := e.subs.Classify(e.now())
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range expired {
		err := e.Reconcile(ctx, rec.MemberID)
		if errors.Is(err, platform.ErrNotFound) {
			continue
		}
		if err != nil {
			logrus.Errorf("Sweep: failed to reconcile %s: %v", rec.MemberID, err)
			continue
		}
		processed++
	}
	if processed > 0 {
		logrus.Infof("Sweep processed %d expired subscriptions", processed)
	}
	return processed, nil
}

// StartupReconcile reconciles every current community member, so role
// state converges with the store after downtime or manual role edits.
func (e *Engine) StartupReconcile(ctx context.Context) error {
	members, err := e.gw.ListMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		unlock := e.lockMember(m.ID)
		if err := e.reconcileMember(ctx, m); err != nil {
			logrus.Errorf("Startup reconcile failed for %s: %v", m.ID, err)
		}
		unlock()
	}
	logrus.Infof("Startup reconciliation completed for %d members", len(members))
	return nil
}

// QueryStatus returns the stored expiry and whether one exists.
func (e *Engine) QueryStatus(memberID string) (time.Time, bool, error) {
	expiry, err := e.subs.Get(memberID)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return expiry, true, nil
}

// ListStatus partitions every stored subscription into active and expired.
func (e *Engine) ListStatus() (active, expired []models.Subscription, err error) {
	return e.subs.Classify(e.now())
}

// ensureRole looks the VIP role up by name and creates it when missing.
// A later call finds the existing role instead of creating a duplicate.
func (e *Engine) ensureRole(ctx context.Context) (*platform.Role, error) {
	role, err := e.gw.GetRole(ctx, RoleName)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, platform.ErrNotFound) {
		return nil, err
	}
	logrus.Infof("VIP role not found, creating it")
	return e.gw.CreateRole(ctx, RoleName, roleColor)
}

func (e *Engine) notify(ctx context.Context, member platform.Member, text string) {
	if err := e.notifier.Deliver(ctx, member, text); err != nil {
		logrus.Errorf("Failed to notify %s after retries: %v", member.ID, err)
	}
}
