package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DBUser         string
	DBPassword     string
	DBName         string
	DBHost         string
	DBPort         string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	BotToken       string
	GuildID        string
	GeneralChannel string
	AdminChannel   string
	AdminContactID string
	CommandPrefix  string
	SweepInterval  time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	cfg := &Config{
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "vip_bot"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		BotToken:       getEnv("DISCORD_TOKEN", ""),
		GuildID:        getEnv("DISCORD_GUILD_ID", ""),
		GeneralChannel: getEnv("GENERAL_CHANNEL_ID", ""),
		AdminChannel:   getEnv("ADMIN_CHANNEL_ID", ""),
		AdminContactID: getEnv("ADMIN_CONTACT_ID", ""),
		CommandPrefix:  getEnv("COMMAND_PREFIX", "!"),
		SweepInterval:  24 * time.Hour,
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID is not set")
	}
	if cfg.GeneralChannel == "" {
		return nil, fmt.Errorf("GENERAL_CHANNEL_ID is not set")
	}

	// The admin fallback channel defaults to the general channel.
	if cfg.AdminChannel == "" {
		cfg.AdminChannel = cfg.GeneralChannel
	}

	if v := getEnv("SWEEP_INTERVAL_HOURS", ""); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 1 {
			return nil, fmt.Errorf("SWEEP_INTERVAL_HOURS must be a positive integer, got %q", v)
		}
		cfg.SweepInterval = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
