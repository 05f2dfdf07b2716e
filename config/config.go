package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Token          string   // Required: bot access token
	ChannelID      string   // Required: channel for birthday announcements
	RoleID         string   // Optional: role held for the duration of a birthday
	GuildID        string   // Optional: guild to register commands in (default: global)
	OfficerRoleIDs []string // Optional: roles allowed to run officer commands

	DatabaseURL string  // Optional: sqlite path or postgres DSN (default: cakeday.db)
	SeedFile    string  // Optional: YAML file applied to an empty birthday table
	StatusAddr  string  // Optional: status server listen address (default: disabled)
	APIRate     float64 // Optional: sustained discord API calls per second (default: 5)

	Env                 string        // Environment (dev, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	ShutdownGracePeriod time.Duration // Bound on waiting for an in-flight pass (default: 10s)
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Token:          os.Getenv("DISCORD_TOKEN"),
		ChannelID:      os.Getenv("BIRTHDAY_CHANNEL_ID"),
		RoleID:         os.Getenv("BIRTHDAY_ROLE_ID"),
		GuildID:        os.Getenv("DISCORD_GUILD_ID"),
		OfficerRoleIDs: splitList(os.Getenv("OFFICER_ROLE_IDS")),

		DatabaseURL: getEnvOrDefault("DATABASE_URL", "cakeday.db"),
		SeedFile:    os.Getenv("SEED_FILE"),
		StatusAddr:  os.Getenv("STATUS_ADDR"),
		APIRate:     getEnvFloatOrDefault("DISCORD_API_RPS", 5),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN must be set"))
	}
	if c.ChannelID == "" {
		errs = append(errs, errors.New("BIRTHDAY_CHANNEL_ID must be set"))
	}
	if c.APIRate <= 0 {
		errs = append(errs, errors.New("DISCORD_API_RPS must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
