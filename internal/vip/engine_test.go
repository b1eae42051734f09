package vip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-bot/internal/database/databasetest"
	"vip-bot/internal/duration"
	"vip-bot/internal/messaging"
	"vip-bot/internal/platform"
	"vip-bot/internal/platform/platformtest"
	"vip-bot/internal/store"
)

const generalChannel = "chan-general"

type fixture struct {
	engine *Engine
	fake   *platformtest.Fake
	subs   *store.SubscriptionStore
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)

	f := &fixture{
		fake: platformtest.NewFake(),
		subs: store.NewSubscriptionStore(db),
		now:  time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
	notifier := messaging.NewNotifier(f.fake, generalChannel, generalChannel, "").
		WithRetryPolicy(messaging.RetryPolicy{Attempts: 3, Delay: 0})
	f.engine = NewEngine(f.subs, f.fake, notifier).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) addMember(id string, roleIDs ...string) {
	f.fake.AddMember(platform.Member{ID: id, Username: "user-" + id, JoinedAt: f.now.AddDate(0, -3, 0), RoleIDs: roleIDs})
}

func (f *fixture) vipRoleID(t *testing.T) string {
	t.Helper()
	role, err := f.fake.GetRole(context.Background(), RoleName)
	require.NoError(t, err)
	return role.ID
}

func (f *fixture) memberHoldsVIP(t *testing.T, id string) bool {
	t.Helper()
	member, err := f.fake.ResolveMember(context.Background(), id)
	require.NoError(t, err)
	role, err := f.fake.GetRole(context.Background(), RoleName)
	if err != nil {
		return false
	}
	return member.HasRole(role.ID)
}

func TestReconcileGrantsRoleForFutureSubscription(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	require.NoError(t, f.subs.Put("100", f.now.Add(time.Hour)))

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	assert.True(t, f.memberHoldsVIP(t, "100"))
	require.Len(t, f.fake.DMs, 1)
	assert.Contains(t, f.fake.DMs[0].Content, "granted the VIP role")
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	require.NoError(t, f.subs.Put("100", f.now.Add(time.Hour)))

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))
	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	assert.Len(t, f.fake.RoleAdds, 1, "second reconcile must not repeat the role grant")
	assert.Len(t, f.fake.DMs, 1, "second reconcile must not repeat the notice")
}

func TestReconcileRemovesRoleWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	role, err := f.fake.CreateRole(context.Background(), RoleName, roleColor)
	require.NoError(t, err)
	f.addMember("100", role.ID)

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	assert.False(t, f.memberHoldsVIP(t, "100"))
	require.Len(t, f.fake.DMs, 1)
	assert.Contains(t, f.fake.DMs[0].Content, "expired")
}

func TestReconcileNoopWithoutSubscriptionOrRole(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	assert.Empty(t, f.fake.RoleAdds)
	assert.Empty(t, f.fake.RoleDrops)
	assert.Empty(t, f.fake.DMs)
}

func TestReconcileExpiredWithRoleHeld(t *testing.T) {
	f := newFixture(t)
	role, err := f.fake.CreateRole(context.Background(), RoleName, roleColor)
	require.NoError(t, err)
	f.addMember("100", role.ID)
	require.NoError(t, f.subs.Put("100", f.now.Add(-time.Minute)))

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	assert.False(t, f.memberHoldsVIP(t, "100"))
	_, err = f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound, "expired record must be deleted")
	require.Len(t, f.fake.DMs, 1)
	assert.Contains(t, f.fake.DMs[0].Content, "expired")
}

func TestReconcileExpiredWithoutRoleCleansUpSilently(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	require.NoError(t, f.subs.Put("100", f.now.Add(-time.Minute)))

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))

	_, err := f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.fake.DMs, "cleanup of an already-revoked member must not notify")
	assert.Empty(t, f.fake.RoleDrops)
}

func TestGrantComputesExpiryFromDuration(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	expiry, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err)
	assert.True(t, expiry.Equal(f.now.Add(10*24*time.Hour)))

	stored, ok, err := f.engine.QueryStatus("100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Equal(expiry))
	assert.True(t, f.memberHoldsVIP(t, "100"))
}

func TestGrantInvalidUnitLeavesExistingSubscription(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	prior := f.now.Add(time.Hour)
	require.NoError(t, f.subs.Put("100", prior))

	_, err := f.engine.Grant(context.Background(), "100", "10x")
	require.ErrorIs(t, err, duration.ErrInvalidUnit)

	stored, err := f.subs.Get("100")
	require.NoError(t, err)
	assert.True(t, stored.Equal(prior), "failed validation must not mutate the store")
	assert.Empty(t, f.fake.RoleAdds)
}

func TestGrantInvalidFormat(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	_, err := f.engine.Grant(context.Background(), "100", "abc")
	require.ErrorIs(t, err, duration.ErrInvalidFormat)
}

func TestGrantReplacesPriorExpiry(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	_, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err)
	expiry, err := f.engine.Grant(context.Background(), "100", "1h")
	require.NoError(t, err)

	stored, ok, err := f.engine.QueryStatus("100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Equal(expiry), "a new grant replaces, not extends, the prior expiry")
	assert.True(t, stored.Equal(f.now.Add(time.Hour)))
}

func TestGrantCommitsDespiteNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	f.fake.QueueDMError("100",
		platform.ErrPermissionDenied, platform.ErrPermissionDenied, platform.ErrPermissionDenied)
	f.fake.QueueChannelError(
		platform.ErrPermissionDenied, platform.ErrPermissionDenied, platform.ErrPermissionDenied)

	_, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err, "a failed notice must not fail the grant")

	assert.True(t, f.memberHoldsVIP(t, "100"))
	_, ok, err := f.engine.QueryStatus("100")
	require.NoError(t, err)
	assert.True(t, ok, "role and store mutations must be committed before notification")
}

func TestGrantFallsBackToChannelOnClosedDMs(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	f.fake.QueueDMError("100", platform.ErrPermissionDenied)

	_, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err)

	assert.True(t, f.memberHoldsVIP(t, "100"))
	require.Len(t, f.fake.Posts, 1)
	assert.Equal(t, generalChannel, f.fake.Posts[0].Target)
	assert.Contains(t, f.fake.Posts[0].Content, "<@100>")
}

func TestRevokeIsUnconditional(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	// No subscription and no role: the notice still goes out.
	require.NoError(t, f.engine.Revoke(context.Background(), "100"))
	require.Len(t, f.fake.DMs, 1)
	assert.Contains(t, f.fake.DMs[0].Content, "removed")
}

func TestRevokeRemovesRoleAndRecord(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	_, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err)

	require.NoError(t, f.engine.Revoke(context.Background(), "100"))

	assert.False(t, f.memberHoldsVIP(t, "100"))
	_, ok, err := f.engine.QueryStatus("100")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	role, err := f.fake.CreateRole(context.Background(), RoleName, roleColor)
	require.NoError(t, err)
	f.addMember("active", role.ID)
	f.addMember("expired", role.ID)
	require.NoError(t, f.subs.Put("active", f.now.Add(time.Hour)))
	require.NoError(t, f.subs.Put("expired", f.now.Add(-time.Hour)))
	require.NoError(t, f.subs.Put("departed", f.now.Add(-time.Hour)))

	processed, err := f.engine.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.False(t, f.memberHoldsVIP(t, "expired"))
	_, err = f.subs.Get("expired")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.True(t, f.memberHoldsVIP(t, "active"), "active subscriptions are untouched by the sweep")

	_, err = f.subs.Get("departed")
	assert.NoError(t, err, "records of members who left stay until they rejoin")
}

func TestStartupReconcileConverges(t *testing.T) {
	f := newFixture(t)
	role, err := f.fake.CreateRole(context.Background(), RoleName, roleColor)
	require.NoError(t, err)
	// Holds the role with no record (manual edit while offline).
	f.addMember("stale", role.ID)
	// Has a record but lost the role.
	f.addMember("missing-role")
	require.NoError(t, f.subs.Put("missing-role", f.now.Add(time.Hour)))

	require.NoError(t, f.engine.StartupReconcile(context.Background()))

	assert.False(t, f.memberHoldsVIP(t, "stale"))
	assert.True(t, f.memberHoldsVIP(t, "missing-role"))
}

func TestRoleCreatedOnceOnFirstNeed(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")
	f.addMember("200")
	require.NoError(t, f.subs.Put("100", f.now.Add(time.Hour)))
	require.NoError(t, f.subs.Put("200", f.now.Add(time.Hour)))

	require.NoError(t, f.engine.Reconcile(context.Background(), "100"))
	require.NoError(t, f.engine.Reconcile(context.Background(), "200"))

	roles, err := f.fake.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 1, "second need must find the existing role, not create a duplicate")
	assert.Equal(t, RoleName, roles[0].Name)
}

func TestListStatusMatchesQueryStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.subs.Put("a", f.now.Add(time.Hour)))
	require.NoError(t, f.subs.Put("b", f.now.Add(-time.Hour)))

	active, expired, err := f.engine.ListStatus()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Len(t, expired, 1)

	for _, sub := range append(active, expired...) {
		stored, ok, err := f.engine.QueryStatus(sub.MemberID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, stored.Equal(sub.ExpiryAt))
	}
}

func TestGrantThenExpiryEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	expiry, err := f.engine.Grant(context.Background(), "100", "10d")
	require.NoError(t, err)
	assert.True(t, f.memberHoldsVIP(t, "100"))
	require.Len(t, f.fake.DMs, 1)
	assert.Contains(t, f.fake.DMs[0].Content, "granted the VIP role")

	f.now = expiry.Add(time.Second)

	processed, err := f.engine.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.False(t, f.memberHoldsVIP(t, "100"))
	_, ok, err := f.engine.QueryStatus("100")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, f.fake.DMs, 2)
	assert.Contains(t, f.fake.DMs[1].Content, "expired")
}

func TestConcurrentGrantsStayConsistent(t *testing.T) {
	f := newFixture(t)
	f.addMember("100")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Grant(context.Background(), "100", "10d")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.memberHoldsVIP(t, "100"))
	assert.Len(t, f.fake.RoleAdds, 1, "per-member serialization must prevent duplicate role grants")
}
