package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is an in-process limiter admitting at most Requests per Window.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a limiter that refills one token every
// window/requests. burst <= 0 means 1, which keeps any rolling window of
// length window at or below requests acquisitions.
func NewTokenBucket(requests int, window time.Duration, burst int) (*TokenBucket, error) {
	if requests <= 0 {
		return nil, fmt.Errorf("requests must be > 0 (got %d)", requests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be > 0 (got %s)", window)
	}
	if burst <= 0 {
		burst = 1
	}
	if burst > requests {
		burst = requests
	}

	// Round up so the refill rate never exceeds requests per window.
	interval := (window + time.Duration(requests) - 1) / time.Duration(requests)
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}, nil
}

// Wait blocks until a token is available.
func (b *TokenBucket) Wait(ctx context.Context) error {
	start := time.Now()

	if b.limiter.Allow() {
		return nil
	}

	fecRateLimitWaitsTotal.WithLabelValues("token_bucket").Inc()
	err := b.limiter.Wait(ctx)
	fecRateLimitWaitSeconds.WithLabelValues("token_bucket").Observe(time.Since(start).Seconds())
	if err != nil {
		// rate.Limiter reports "would exceed deadline" before the deadline
		// actually passes; surface the context error either way.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("wait for token: %w", err)
	}
	return nil
}

// Limit returns the refill rate in tokens per second.
func (b *TokenBucket) Limit() float64 {
	return float64(b.limiter.Limit())
}
