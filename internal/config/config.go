package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string

	// Cache TTL policy, fixed at startup and handed to the cache
	// coordinator at construction.
	CacheDefaultTTL time.Duration
	CacheShortTTL   time.Duration
	CacheLongTTL    time.Duration

	// Per-client rate limit. Zero capacity disables limiting.
	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from the environment, after loading a .env file
// when one exists (it usually does not in production, which is fine).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg := &Config{
		Environment:     getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheDefaultTTL: getenvDuration("CACHE_DEFAULT_TTL", 30*time.Minute),
		CacheShortTTL:   getenvDuration("CACHE_SHORT_TTL", 5*time.Minute),
		CacheLongTTL:    getenvDuration("CACHE_LONG_TTL", 24*time.Hour),

		RateLimitCapacity: getenvInt("RATE_LIMIT_CAPACITY", 0),
		RateLimitRefill:   getenvFloat("RATE_LIMIT_REFILL_RPS", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.CacheShortTTL > c.CacheLongTTL {
		return errors.New("CACHE_SHORT_TTL must not exceed CACHE_LONG_TTL")
	}

	if c.RateLimitCapacity > 0 && c.RateLimitRefill <= 0 {
		return errors.New("RATE_LIMIT_REFILL_RPS must be positive when rate limiting is enabled")
	}

	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("unparseable integer, using default", "key", key, "value", v)
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("unparseable float, using default", "key", key, "value", v)
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("unparseable duration, using default", "key", key, "value", v)
		return def
	}
	return d
}
