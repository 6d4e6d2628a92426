package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fecRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	fecRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fec_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{1, 2, 4, 8, 16, 60, 300, 600},
	}, []string{"kind"})

	fecRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseBackoff is the wait after the first failed attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  600 * time.Second,
	}
}

// Validate checks the configuration for values the retrier cannot honour.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseBackoff < 0 {
		return fmt.Errorf("base_backoff must not be negative (got %s)", c.BaseBackoff)
	}
	if c.MaxBackoff < c.BaseBackoff {
		return fmt.Errorf("max_backoff (%s) must be >= base_backoff (%s)", c.MaxBackoff, c.BaseBackoff)
	}
	return nil
}

// Backoff returns the wait before the attempt following the given failed
// attempt: min(MaxBackoff, BaseBackoff * 2^(attempt-1)).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := c.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= c.MaxBackoff || backoff <= 0 {
			return c.MaxBackoff
		}
	}
	if backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// Retrier runs fallible operations with bounded exponential backoff.
type Retrier struct {
	config RetryConfig
	logger zerolog.Logger
}

// NewRetrier creates a retrier. A MaxAttempts below 1 is treated as 1.
func NewRetrier(config RetryConfig, logger zerolog.Logger) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Retrier{config: config, logger: logger}
}

// Config returns the retry configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Failures are returned as classified *APIError
// values; exhaustion additionally wraps ErrRetryExhausted and cancellation
// wraps ErrContextCancelled.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr *APIError

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		// The caller gave up; whatever the attempt returned is moot.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, errors.Join(ctxErr, err))
		}

		lastErr = Classify(err)

		if !lastErr.Retryable {
			return lastErr
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		kind := string(lastErr.Kind)
		backoff := r.config.Backoff(attempt)
		fecRetriesTotal.WithLabelValues(kind).Inc()
		fecRetryBackoffSeconds.WithLabelValues(kind).Observe(backoff.Seconds())

		r.logger.Warn().
			Err(lastErr).
			Str("error_kind", kind).
			Int("attempt", attempt).
			Int("max_attempts", r.config.MaxAttempts).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Warn().
				Str("error_kind", kind).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	fecRetryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
	r.logger.Warn().
		Str("error_kind", string(lastErr.Kind)).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, r.config.MaxAttempts, lastErr)
}
