// Package config loads fec-ingest configuration from environment variables.
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
	defaultBaseURL        = "https://api.open.fec.gov/v1"
	defaultUserAgent      = "fec-ingest/0.1.0"
	defaultRateRequests   = 1000
	defaultRateWindow     = time.Hour
	defaultRateBurst      = 1
	defaultLimiter        = LimiterLocal
	defaultRedisURL       = "redis://localhost:6379/0"
	defaultCacheTTL       = 0
	defaultMaxAttempts    = 3
	defaultBackoffBase    = 2 * time.Second
	defaultBackoffMax     = 600 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultPerPage        = 100
	defaultConcurrency    = 5
	defaultChunkSize      = 500
	defaultLookbackDays   = 7
	defaultDBDriver       = "postgres"
	defaultLogLevel       = "info"
	defaultLogLocation    = "America/New_York"
)

// Limiter backends.
const (
	LimiterLocal = "local"
	LimiterRedis = "redis"
)

// Config holds fec-ingest configuration values.
type Config struct {
	APIBaseURL     string
	APIKey         string
	UserAgent      string
	RequestTimeout time.Duration
	PerPage        int

	RateRequests int
	RateWindow   time.Duration
	RateBurst    int
	Limiter      string
	RedisURL     string
	CacheTTL     time.Duration // zero disables the page cache

	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	Concurrency  int
	MaxPages     int // zero means no cap
	ChunkSize    int
	LookbackDays int

	DBDriver string
	DBDSN    string

	LogLevel    string
	LogPretty   bool
	LogLocation string
	MetricsAddr string // empty disables the metrics listener
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment take precedence over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Config{
		APIBaseURL:     envOrDefault("FEC_API_BASE_URL", defaultBaseURL),
		APIKey:         strings.TrimSpace(os.Getenv("FEC_API_KEY")),
		UserAgent:      envOrDefault("FEC_USER_AGENT", defaultUserAgent),
		RequestTimeout: envPositiveDuration("FEC_REQUEST_TIMEOUT", defaultRequestTimeout),
		PerPage:        envPositiveInt("FEC_PER_PAGE", defaultPerPage),
		RateRequests:   envPositiveInt("FEC_RATE_LIMIT_REQUESTS", defaultRateRequests),
		RateWindow:     envPositiveDuration("FEC_RATE_LIMIT_WINDOW", defaultRateWindow),
		RateBurst:      envPositiveInt("FEC_RATE_LIMIT_BURST", defaultRateBurst),
		Limiter:        strings.ToLower(envOrDefault("FEC_RATE_LIMITER", defaultLimiter)),
		RedisURL:       envOrDefault("FEC_REDIS_URL", defaultRedisURL),
		CacheTTL:       envPositiveDuration("FEC_CACHE_TTL", defaultCacheTTL),
		MaxAttempts:    envPositiveInt("FEC_RETRY_MAX_ATTEMPTS", defaultMaxAttempts),
		BackoffBase:    envPositiveDuration("FEC_RETRY_BACKOFF_BASE", defaultBackoffBase),
		BackoffMax:     envPositiveDuration("FEC_RETRY_BACKOFF_MAX", defaultBackoffMax),
		Concurrency:    envPositiveInt("FEC_CONCURRENCY", defaultConcurrency),
		MaxPages:       envPositiveInt("FEC_MAX_PAGES", 0),
		ChunkSize:      envPositiveInt("FEC_CHUNK_SIZE", defaultChunkSize),
		LookbackDays:   envPositiveInt("FEC_LOOKBACK_DAYS", defaultLookbackDays),
		DBDriver:       strings.ToLower(envOrDefault("FEC_DB_DRIVER", defaultDBDriver)),
		DBDSN:          strings.TrimSpace(os.Getenv("FEC_DB_DSN")),
		LogLevel:       strings.ToLower(envOrDefault("FEC_LOG_LEVEL", defaultLogLevel)),
		LogPretty:      envBool("FEC_LOG_PRETTY", false),
		LogLocation:    envOrDefault("FEC_LOG_LOCATION", defaultLogLocation),
		MetricsAddr:    envOrDefault("FEC_METRICS_ADDR", ""),
	}

	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}

	switch cfg.Limiter {
	case LimiterLocal, LimiterRedis:
	default:
		return Config{}, fmt.Errorf("FEC_RATE_LIMITER must be %q or %q (got %q)", LimiterLocal, LimiterRedis, cfg.Limiter)
	}

	return cfg, nil
}

// RequireAPIKey returns an error when no API key is configured.
func (c Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("FEC_API_KEY is required")
	}
	return nil
}

// RequireDSN returns an error when no database DSN is configured.
func (c Config) RequireDSN() error {
	if c.DBDSN == "" {
		return fmt.Errorf("FEC_DB_DSN is required")
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
