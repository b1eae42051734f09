// Package bot wires the Discord session to the command router and the
// lifecycle engine's reconciliation triggers.
package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"vip-bot/internal/messaging"
	"vip-bot/internal/platform"
	"vip-bot/internal/presence"
	"vip-bot/internal/store"
	"vip-bot/internal/tags"
	"vip-bot/internal/vip"
)

type Bot struct {
	session  *discordgo.Session
	gw       platform.Gateway
	engine   *vip.Engine
	notifier *messaging.Notifier
	tags     *tags.Service
	tracker  *presence.Tracker
	audit    *store.AuditStore
	prefix   string

	commands map[string]*Command
	order    []string
}

// New assembles the bot. session may be nil in tests; Dispatch and the
// command handlers only use the Gateway.
func New(session *discordgo.Session, gw platform.Gateway, engine *vip.Engine, notifier *messaging.Notifier,
	tagService *tags.Service, tracker *presence.Tracker, audit *store.AuditStore, prefix string) *Bot {
	b := &Bot{
		session:  session,
		gw:       gw,
		engine:   engine,
		notifier: notifier,
		tags:     tagService,
		tracker:  tracker,
		audit:    audit,
		prefix:   prefix,
		commands: make(map[string]*Command),
	}
	b.registerCommands()
	return b
}

func (b *Bot) register(cmd *Command) {
	b.commands[cmd.Name] = cmd
	b.order = append(b.order, cmd.Name)
}

// Start registers the event handlers and opens the gateway connection.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMemberJoin)
	b.session.AddHandler(b.onPresenceUpdate)

	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return b.session.Open()
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	logrus.Infof("Logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	go func() {
		if err := b.engine.StartupReconcile(context.Background()); err != nil {
			logrus.Errorf("Startup reconciliation failed: %v", err)
		}
	}()
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	b.Dispatch(context.Background(), m.ChannelID, m.Author.ID, m.Content)
}

func (b *Bot) onMemberJoin(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if err := b.engine.Reconcile(context.Background(), e.User.ID); err != nil {
		logrus.Errorf("Join reconciliation failed for %s: %v", e.User.ID, err)
	}
}

func (b *Bot) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	switch p.Status {
	case discordgo.StatusOnline, discordgo.StatusIdle, discordgo.StatusDoNotDisturb:
		b.tracker.MemberOnline(p.User.ID)
	case discordgo.StatusOffline:
		if err := b.tracker.MemberOffline(p.User.ID); err != nil {
			logrus.Errorf("Failed to store presence for %s: %v", p.User.ID, err)
		}
	}
}
