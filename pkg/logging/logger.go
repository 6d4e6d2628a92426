// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// DefaultLocation is the zone log timestamps are rendered in.
const DefaultLocation = "America/New_York"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Location is the time zone of log timestamps (default: UTC when nil).
	Location *time.Location
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	loc, err := LoadLocation(DefaultLocation)
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Level:    LevelInfo,
		Pretty:   false,
		Output:   os.Stderr,
		Location: loc,
	}
}

// LoadLocation resolves an IANA zone name. An empty name selects UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown log time zone %q: %w", name, err)
	}
	return loc, nil
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().In(loc)
	}

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.DateTime + " MST"}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page fetches (endpoint, page, cache hit)
//   - Rate limiter waits
//   - Chunk boundaries during upserts
//
// Info: Normal operation events
//   - Entity start/complete with counts
//   - Requests that succeeded after a retry
//   - Empty windows ("No records found to ingest")
//   - Schema migrations
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Pages dropped after exhausting retries
//   - Records rejected by validation
//   - Chunks falling back to row-by-row upserts
//
// Error: Error conditions requiring attention
//   - Failed fetches of page 1
//   - Rows that failed inside a fallback
//   - Lost database connections
//   - Entities that failed inside a multi-entity run
//
// Context Fields:
//   - component: emitting package (fec-client, pagination, batch-upsert, ingest)
//   - run_id: correlation id shared by every entity of one run
//   - entity: ingested entity name
//   - endpoint, page: FEC request coordinates
//   - error_kind: fetch error classification
//   - attempt, backoff: retry progress
//   - table, chunk, key: persistence coordinates
