// Package messaging delivers notices to members. The primary path is a
// direct message; when the member has DMs closed the notice is posted to
// the general channel with a mention instead. The whole attempt is
// wrapped in a retry policy, so delivery is at-least-once: duplicates are
// possible, silent drops are not.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vip-bot/internal/platform"
)

const (
	defaultRetries    = 3
	defaultRetryDelay = 5 * time.Second
)

type Notifier struct {
	gw             platform.Gateway
	generalChannel string
	adminChannel   string
	adminContactID string
	retry          RetryPolicy
}

// NewNotifier builds a Notifier. adminContactID may be empty, in which
// case admin notices go to the community owner. adminChannel is the
// fallback target for admin notices; generalChannel for member notices.
func NewNotifier(gw platform.Gateway, generalChannel, adminChannel, adminContactID string) *Notifier {
	return &Notifier{
		gw:             gw,
		generalChannel: generalChannel,
		adminChannel:   adminChannel,
		adminContactID: adminContactID,
		retry:          RetryPolicy{Attempts: defaultRetries, Delay: defaultRetryDelay},
	}
}

// WithRetryPolicy overrides the retry policy. Used by tests to drop the
// delay.
func (n *Notifier) WithRetryPolicy(p RetryPolicy) *Notifier {
	n.retry = p
	return n
}

// Deliver sends text to the member, falling back to the general channel
// on a permission fault. The primary-then-fallback attempt as a whole is
// retried; after exhaustion the original fault is surfaced.
func (n *Notifier) Deliver(ctx context.Context, member platform.Member, text string) error {
	return n.retry.Do(func() error {
		return n.deliverOnce(ctx, member, text, n.generalChannel)
	}, isPermissionFault)
}

// NotifyAdmin sends text to the administrator contact, or to the
// community owner when none is configured, with the admin fallback
// channel.
func (n *Notifier) NotifyAdmin(ctx context.Context, text string) error {
	admin, err := n.resolveAdmin(ctx)
	if err != nil {
		return fmt.Errorf("resolving admin contact: %w", err)
	}
	return n.retry.Do(func() error {
		return n.deliverOnce(ctx, *admin, text, n.adminChannel)
	}, isPermissionFault)
}

func (n *Notifier) deliverOnce(ctx context.Context, member platform.Member, text, fallbackChannel string) error {
	err := n.gw.SendDirectMessage(ctx, member.ID, text)
	if err == nil {
		return nil
	}
	if !errors.Is(err, platform.ErrPermissionDenied) {
		return err
	}
	logrus.Infof("DM to %s refused, falling back to channel %s", member.ID, fallbackChannel)
	return n.gw.PostToChannel(ctx, fallbackChannel, fmt.Sprintf("%s, %s", member.Mention(), text))
}

func (n *Notifier) resolveAdmin(ctx context.Context) (*platform.Member, error) {
	if n.adminContactID != "" {
		return n.gw.ResolveMember(ctx, n.adminContactID)
	}
	return n.gw.CommunityOwner(ctx)
}

func isPermissionFault(err error) bool {
	return errors.Is(err, platform.ErrPermissionDenied)
}
