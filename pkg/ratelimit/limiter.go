// Package ratelimit bounds the outbound request rate to the FEC API.
//
// Two limiters are provided: TokenBucket gates a single process, WindowLimiter
// shares one fixed-window budget between every process pointed at the same
// Redis instance. Both block without busy-waiting and honour cancellation.
package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Limiter gates outbound requests.
type Limiter interface {
	// Wait blocks until one request may be issued and consumes that
	// allowance. It returns the context error if ctx ends first.
	Wait(ctx context.Context) error
}

// Prometheus metrics for rate limiting.
var (
	fecRateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_rate_limit_waits_total",
		Help: "Total number of requests that had to wait for a rate limit token",
	}, []string{"limiter"})

	fecRateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fec_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
	}, []string{"limiter"})
)
