// Package worker runs the periodic maintenance cycle: pre-expiry
// warnings, the expired-subscription sweep and rank promotions.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vip-bot/internal/messaging"
	"vip-bot/internal/platform"
	"vip-bot/internal/presence"
	"vip-bot/internal/store"
	"vip-bot/internal/vip"
)

const warnDedupTTL = 48 * time.Hour

type Checker struct {
	Subs     *store.SubscriptionStore
	Redis    *redis.Client
	Engine   *vip.Engine
	Notifier *messaging.Notifier
	Tracker  *presence.Tracker
	Gateway  platform.Gateway
	Interval time.Duration

	cron *cron.Cron
}

func NewChecker(subs *store.SubscriptionStore, rdb *redis.Client, engine *vip.Engine,
	notifier *messaging.Notifier, tracker *presence.Tracker, gw platform.Gateway, interval time.Duration) *Checker {
	return &Checker{
		Subs:     subs,
		Redis:    rdb,
		Engine:   engine,
		Notifier: notifier,
		Tracker:  tracker,
		Gateway:  gw,
		Interval: interval,
	}
}

// Start runs one cycle immediately, then schedules the interval. A cycle
// still running when the next tick fires is skipped, so sweeps never
// overlap.
func (c *Checker) Start() error {
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.Interval), c.runCycle); err != nil {
		return fmt.Errorf("failed to schedule maintenance cycle: %w", err)
	}
	logrus.Infof("Background subscription worker started, interval %s", c.Interval)
	go c.runCycle()
	c.cron.Start()
	return nil
}

// Stop waits for a running cycle to finish.
func (c *Checker) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}

func (c *Checker) runCycle() {
	ctx := context.Background()
	logrus.Info("Running subscription check cycle...")

	c.warnExpiring(ctx)

	if _, err := c.Engine.SweepExpired(ctx); err != nil {
		logrus.Errorf("Expired subscription sweep failed: %v", err)
	}

	if err := c.Tracker.PromoteEligible(ctx); err != nil {
		logrus.Errorf("Rank promotion pass failed: %v", err)
	}
}

// warnExpiring messages members whose subscription lapses in roughly a
// day. A redis key with a 48h TTL keeps the warning to one per expiry.
func (c *Checker) warnExpiring(ctx context.Context) {
	now := time.Now()
	subs, err := c.Subs.ExpiringBetween(now.Add(23*time.Hour), now.Add(25*time.Hour))
	if err != nil {
		logrus.Errorf("Error querying expiring subscriptions: %v", err)
		return
	}

	for _, sub := range subs {
		key := fmt.Sprintf("vip_warned_%s", sub.MemberID)
		exists, err := c.Redis.Exists(ctx, key).Result()
		if err != nil {
			logrus.Errorf("Redis lookup failed for %s: %v", key, err)
			continue
		}
		if exists > 0 {
			continue
		}

		member, err := c.Gateway.ResolveMember(ctx, sub.MemberID)
		if err != nil {
			logrus.Warnf("Cannot warn %s about expiry: %v", sub.MemberID, err)
			continue
		}
		err = c.Notifier.Deliver(ctx, *member,
			"Your VIP subscription expires in one day! Renew it to keep your benefits.")
		if err != nil {
			logrus.Errorf("Failed to send expiry warning to %s: %v", sub.MemberID, err)
			continue
		}
		c.Redis.Set(ctx, key, "true", warnDedupTTL)
		logrus.Infof("Sent expiry warning to %s", sub.MemberID)
	}
}
