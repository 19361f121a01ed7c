package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"raidbot/internal/engine"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	AdminIDs      []int64

	// Postgres DSN. When UseMemoryDB is set the bot runs against an
	// in-memory sqlite database instead (local development only).
	DatabaseURL string
	UseMemoryDB bool

	// Linking web service
	ListenAddr           string
	AuthServerURL        string // public base URL handed out in connect buttons
	TwitterClientID      string
	TwitterClientSecret  string
	TwitterRedirectURL   string
	SessionSigningSecret string

	// Presentation links
	ChannelURL string
	SupportURL string

	// Slot economy policy
	Engine engine.Config
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr: ":" + getEnv("PORT", "8080"),
		ChannelURL: os.Getenv("CHANNEL_URL"),
		SupportURL: os.Getenv("SUPPORT_URL"),
		Engine:     engine.DefaultConfig(),
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	adminIDsStr := os.Getenv("ADMIN_IDS")
	if adminIDsStr == "" {
		return nil, fmt.Errorf("ADMIN_IDS is required (comma-separated list of Telegram user IDs)")
	}
	for _, idStr := range strings.Split(adminIDsStr, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in ADMIN_IDS: %s", idStr)
		}
		cfg.AdminIDs = append(cfg.AdminIDs, id)
	}

	cfg.UseMemoryDB = os.Getenv("USE_MEMORY_DB") == "true"
	if !cfg.UseMemoryDB {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when USE_MEMORY_DB is not set")
		}
	}

	cfg.TwitterClientID = os.Getenv("TWITTER_CLIENT_ID")
	cfg.TwitterClientSecret = os.Getenv("TWITTER_CLIENT_SECRET")
	cfg.TwitterRedirectURL = os.Getenv("TWITTER_REDIRECT_URL")
	cfg.AuthServerURL = os.Getenv("AUTH_SERVER_URL")
	cfg.SessionSigningSecret = os.Getenv("SESSION_SECRET")
	if cfg.TwitterClientID != "" && cfg.SessionSigningSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required when Twitter linking is configured")
	}

	if err := loadEnginePolicy(&cfg.Engine); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnginePolicy overrides the default economy knobs from the environment.
// Every variable is optional.
func loadEnginePolicy(policy *engine.Config) error {
	floats := map[string]*float64{
		"STARTING_BALANCE": &policy.StartingBalance,
		"REFERRAL_BONUS":   &policy.ReferralBonus,
		"TASK_REWARD":      &policy.TaskReward,
	}
	for name, target := range floats {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return fmt.Errorf("invalid %s: %s", name, raw)
		}
		*target = value
	}

	durations := map[string]*time.Duration{
		"COOLDOWN_WINDOW":           &policy.CooldownWindow,
		"APPROVAL_GRACE_WINDOW":     &policy.ApprovalGraceWindow,
		"ENGAGEMENT_WINDOW":         &policy.EngagementWindow,
		"VERIFICATION_GRACE_WINDOW": &policy.VerificationGraceWindow,
		"SANCTION_DURATION":         &policy.SanctionDuration,
	}
	for name, target := range durations {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		value, err := time.ParseDuration(raw)
		if err != nil || value < 0 {
			return fmt.Errorf("invalid %s: %s", name, raw)
		}
		*target = value
	}

	switch mode := os.Getenv("VERIFY_MODE"); mode {
	case "":
	case string(engine.VerifyAuto):
		policy.VerifyMode = engine.VerifyAuto
	case string(engine.VerifyManual):
		policy.VerifyMode = engine.VerifyManual
	default:
		return fmt.Errorf("invalid VERIFY_MODE: %s (want auto or manual)", mode)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
