package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "GiveTag"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultSessionTTL     = 15 * time.Minute
	defaultChallengeTTL   = 10 * time.Minute
	defaultPendingTTL     = time.Hour
	defaultPINRateLimit   = 5
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string
	AppEnv            string
	Port              string
	LogLevel          string
	DatabaseURL       string
	RedisURL          string
	SessionSecret     string
	ShutdownPeriod    time.Duration
	IdempotencyTTL    time.Duration
	SessionTTL        time.Duration
	ChallengeTTL      time.Duration
	PendingPaymentTTL time.Duration
	PINRateLimit      int
}

// Load reads configuration from the environment, after merging an optional
// .env file, and populates a Config instance. DATABASE_URL and REDIS_URL are
// required outside development; dev mode falls back to in-memory backends.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		SessionTTL:        defaultSessionTTL,
		ChallengeTTL:      defaultChallengeTTL,
		PendingPaymentTTL: defaultPendingTTL,
		PINRateLimit:      defaultPINRateLimit,
	}

	durations := []struct {
		envVar string
		target *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"CHALLENGE_TTL", &cfg.ChallengeTTL},
		{"PENDING_PAYMENT_TTL", &cfg.PendingPaymentTTL},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv("PIN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIN_RATE_LIMIT: %w", err)
		}
		cfg.PINRateLimit = n
	}

	if cfg.SessionSecret == "" {
		if cfg.IsDev() {
			cfg.SessionSecret = "dev-session-secret"
		} else {
			return Config{}, fmt.Errorf("SESSION_SECRET must be set")
		}
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
