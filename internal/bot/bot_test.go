package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-bot/internal/database/databasetest"
	"vip-bot/internal/messaging"
	"vip-bot/internal/platform"
	"vip-bot/internal/platform/platformtest"
	"vip-bot/internal/presence"
	"vip-bot/internal/store"
	"vip-bot/internal/tags"
	"vip-bot/internal/vip"
)

const commandChannel = "chan-commands"

type fixture struct {
	bot  *Bot
	fake *platformtest.Fake
	subs *store.SubscriptionStore
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)
	f := &fixture{
		fake: platformtest.NewFake(),
		subs: store.NewSubscriptionStore(db),
		now:  time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
	}

	notifier := messaging.NewNotifier(f.fake, "chan-general", "chan-general", "").
		WithRetryPolicy(messaging.RetryPolicy{Attempts: 3, Delay: 0})
	engine := vip.NewEngine(f.subs, f.fake, notifier).WithClock(func() time.Time { return f.now })
	tagService := tags.NewService(store.NewTagStore(db), f.fake)
	tracker := presence.NewTracker(store.NewPresenceStore(db), f.fake)
	audit := store.NewAuditStore(db)

	f.bot = New(nil, f.fake, engine, notifier, tagService, tracker, audit, "!")

	f.fake.AddMember(platform.Member{ID: "owner", Username: "owner", JoinedAt: f.now.AddDate(-1, 0, 0)})
	f.fake.SetOwner("owner")
	f.fake.AddMember(platform.Member{ID: "admin", Username: "admin", JoinedAt: f.now.AddDate(-1, 0, 0)})
	f.fake.SetAdmin("admin", true)
	f.fake.AddMember(platform.Member{ID: "100", Username: "alice", JoinedAt: f.now.AddDate(0, -2, 0)})
	return f
}

func (f *fixture) dispatch(authorID, content string) {
	f.bot.Dispatch(context.Background(), commandChannel, authorID, content)
}

func (f *fixture) lastReply(t *testing.T) string {
	t.Helper()
	for i := len(f.fake.Posts) - 1; i >= 0; i-- {
		if f.fake.Posts[i].Target == commandChannel {
			return f.fake.Posts[i].Content
		}
	}
	t.Fatal("no reply posted to the command channel")
	return ""
}

func TestDispatchIgnoresNonCommandMessages(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "hello everyone")
	f.dispatch("100", "!")
	assert.Empty(t, f.fake.Posts)
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!frobnicate")
	assert.Contains(t, f.lastReply(t), "Command not found")
}

func TestAddVIPRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!addvip <@100> 10d")

	assert.Contains(t, f.lastReply(t), "required permissions")
	_, err := f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddVIPMissingArgument(t *testing.T) {
	f := newFixture(t)
	f.dispatch("admin", "!addvip <@100>")
	assert.Contains(t, f.lastReply(t), "Missing required argument")
}

func TestAddVIPUnknownMember(t *testing.T) {
	f := newFixture(t)
	f.dispatch("admin", "!addvip <@999> 10d")
	assert.Contains(t, f.lastReply(t), "Member not found")
}

func TestAddVIPGrantsAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.dispatch("admin", "!addvip <@100> 10d")

	assert.Contains(t, f.lastReply(t), "VIP subscription added for <@100> for 10d.")

	expiry, err := f.subs.Get("100")
	require.NoError(t, err)
	assert.True(t, expiry.Equal(f.now.Add(10*24*time.Hour)))

	member, err := f.fake.ResolveMember(context.Background(), "100")
	require.NoError(t, err)
	role, err := f.fake.GetRole(context.Background(), vip.RoleName)
	require.NoError(t, err)
	assert.True(t, member.HasRole(role.ID))

	// Welcome DM to the member and admin notice to the owner.
	targets := make([]string, 0, len(f.fake.DMs))
	for _, dm := range f.fake.DMs {
		targets = append(targets, dm.Target)
	}
	assert.Contains(t, targets, "100")
	assert.Contains(t, targets, "owner")
}

func TestAddVIPAcceptsNicknameMentionAndRawID(t *testing.T) {
	f := newFixture(t)
	f.dispatch("admin", "!addvip <@!100> 1h")
	_, err := f.subs.Get("100")
	require.NoError(t, err)

	f.dispatch("admin", "!removevip 100")
	_, err = f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddVIPInvalidDuration(t *testing.T) {
	f := newFixture(t)
	f.dispatch("admin", "!addvip <@100> 10x")

	assert.Contains(t, f.lastReply(t), "Invalid duration unit")
	_, err := f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound, "validation failure must not create a subscription")
}

func TestCheckVIP(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!checkvip <@100>")
	assert.Contains(t, f.lastReply(t), "does not have an active VIP subscription")

	f.dispatch("admin", "!addvip <@100> 10d")
	f.dispatch("100", "!checkvip <@100>")
	assert.Contains(t, f.lastReply(t), "valid until 2025-06-11 12:00:00")
}

func TestListVIP(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.subs.Put("100", f.now.Add(time.Hour)))
	require.NoError(t, f.subs.Put("gone", f.now.Add(-time.Hour)))

	f.dispatch("100", "!listvip")

	reply := f.lastReply(t)
	assert.Contains(t, reply, "Active VIPs")
	assert.Contains(t, reply, "<@100> - Expires on")
	assert.Contains(t, reply, "<@gone> - Expired on")
}

func TestCheckExpiredVIPSweeps(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.subs.Put("100", f.now.Add(-time.Hour)))

	f.dispatch("admin", "!checkexpiredvip")

	assert.Contains(t, f.lastReply(t), "Processed 1")
	_, err := f.subs.Get("100")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTagCommands(t *testing.T) {
	f := newFixture(t)
	f.fake.AddRole(platform.Role{ID: "r-survivor", Name: store.DefaultTagRole})
	f.fake.RemoveMember("100")
	f.fake.AddMember(platform.Member{ID: "100", Username: "alice", RoleIDs: []string{"r-survivor"}, JoinedAt: f.now.AddDate(0, -2, 0)})

	f.dispatch("100", "!assign_tag <@100> builder")
	assert.Contains(t, f.lastReply(t), "Successfully assigned tag 'builder'")

	f.dispatch("100", "!user_tags <@100>")
	assert.Contains(t, f.lastReply(t), "builder")

	f.dispatch("100", "!list_tags")
	assert.Contains(t, f.lastReply(t), "Available tags: builder")

	f.dispatch("100", "!remove_tag <@100> builder")
	assert.Contains(t, f.lastReply(t), "Successfully removed tag 'builder'")
}

func TestAssignTagUnauthorized(t *testing.T) {
	f := newFixture(t)
	// No Survivor role in the guild, so the author cannot hold it.
	f.dispatch("100", "!assign_tag <@100> builder")
	assert.Contains(t, f.lastReply(t), "Not authorized")
}

func TestSetTagRuleRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!set_tag_rule builder Admin")
	assert.Contains(t, f.lastReply(t), "required permissions")

	f.dispatch("admin", "!set_tag_rule builder Admin Moderator")
	assert.Contains(t, f.lastReply(t), "Roles allowed to manage the tag 'builder': Admin, Moderator")
}

func TestActiveTimeDefaultsToAuthor(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!active_time")
	assert.Contains(t, f.lastReply(t), "<@100>'s total active time: 00:00:00")
}

func TestHelpListsCommands(t *testing.T) {
	f := newFixture(t)
	f.dispatch("100", "!help")
	reply := f.lastReply(t)
	assert.Contains(t, reply, "!addvip (admin)")
	assert.Contains(t, reply, "!checkvip")
	assert.Contains(t, reply, "!user_level")
}
