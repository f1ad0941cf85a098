package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Feed backends.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
	FeedNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	NATSURL     string
	FeedBackend string

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/wemake.db"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NATSURL:          os.Getenv("NATS_URL"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		SessionTTL:       getDuration("SESSION_TTL", 7*24*time.Hour),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	cfg.FeedBackend = strings.ToLower(getEnv("FEED_BACKEND", defaultFeed(cfg)))

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if cfg.SessionSecret == "" && cfg.Env != "production" {
		cfg.SessionSecret = "wemake-dev-secret"
	}

	// In production, require database, redis and session secret
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.SessionSecret == "" {
			panic("SESSION_SECRET is required in production")
		}
	}

	switch cfg.FeedBackend {
	case FeedMemory, FeedRedis, FeedNATS:
	default:
		panic("FEED_BACKEND must be one of memory, redis, nats")
	}
	if cfg.FeedBackend == FeedRedis && cfg.RedisURL == "" {
		panic("FEED_BACKEND=redis requires REDIS_URL")
	}
	if cfg.FeedBackend == FeedNATS && cfg.NATSURL == "" {
		panic("FEED_BACKEND=nats requires NATS_URL")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// defaultFeed picks the shared transport when one is configured.
func defaultFeed(cfg *Config) string {
	switch {
	case cfg.NATSURL != "":
		return FeedNATS
	case cfg.RedisURL != "":
		return FeedRedis
	default:
		return FeedMemory
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
