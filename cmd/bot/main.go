package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"vip-bot/internal/bot"
	"vip-bot/internal/config"
	"vip-bot/internal/database"
	"vip-bot/internal/messaging"
	"vip-bot/internal/platform"
	"vip-bot/internal/presence"
	"vip-bot/internal/store"
	"vip-bot/internal/tags"
	"vip-bot/internal/vip"
	"vip-bot/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logrus.Fatalf("Could not connect to database: %v", err)
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		logrus.Fatalf("Could not connect to redis: %v", err)
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		logrus.Fatalf("Could not create Discord session: %v", err)
	}

	gw := platform.NewDiscord(session, cfg.GuildID)

	subs := store.NewSubscriptionStore(db)
	notifier := messaging.NewNotifier(gw, cfg.GeneralChannel, cfg.AdminChannel, cfg.AdminContactID)
	engine := vip.NewEngine(subs, gw, notifier)
	tagService := tags.NewService(store.NewTagStore(db), gw)
	tracker := presence.NewTracker(store.NewPresenceStore(db), gw)
	audit := store.NewAuditStore(db)

	b := bot.New(session, gw, engine, notifier, tagService, tracker, audit, cfg.CommandPrefix)
	if err := b.Start(); err != nil {
		logrus.Fatalf("Could not open Discord session: %v", err)
	}

	checker := worker.NewChecker(subs, rdb, engine, notifier, tracker, gw, cfg.SweepInterval)
	if err := checker.Start(); err != nil {
		logrus.Fatalf("Could not start background worker: %v", err)
	}

	logrus.Info("Service started successfully")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logrus.Info("Shutting down...")
	checker.Stop()
	if err := b.Stop(); err != nil {
		logrus.Errorf("Error closing Discord session: %v", err)
	}
}
