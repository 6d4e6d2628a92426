package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces the per-window counters.
const RedisKeyPrefix = "fec:rate_limit"

var fecRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fec_rate_limit_remaining",
	Help: "Requests remaining in the current shared rate limit window",
})

// WindowState is the shared request budget for one fixed window.
type WindowState struct {
	// Count is the number of acquisitions recorded in this window,
	// including ones that were turned away.
	Count int64 `json:"count"`

	// Limit is the number of acquisitions admitted per window.
	Limit int `json:"limit"`

	// WindowStart is the beginning of the window.
	WindowStart time.Time `json:"window_start"`

	// ResetAt is when the next window starts.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many acquisitions the window still admits.
func (s *WindowState) Remaining() int {
	remaining := int64(s.Limit) - s.Count
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Admitted reports whether the acquisition that produced Count fits the budget.
func (s *WindowState) Admitted() bool {
	return s.Count <= int64(s.Limit)
}

// Exhausted reports whether no further acquisitions fit this window.
func (s *WindowState) Exhausted() bool {
	return s.Count >= int64(s.Limit)
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *WindowState) TimeUntilReset() time.Duration {
	return s.timeUntilReset(time.Now())
}

func (s *WindowState) timeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// WindowLimiter admits at most Limit requests per fixed window across every
// process sharing the Redis instance.
type WindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewWindowLimiter creates a fleet-wide limiter backed by Redis.
func NewWindowLimiter(redisClient *redis.Client, limit int, window time.Duration, logger zerolog.Logger) (*WindowLimiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0 (got %d)", limit)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("window must be >= 1ms (got %s)", window)
	}

	return &WindowLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		prefix: RedisKeyPrefix,
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithPrefix returns a copy of the limiter using a different key namespace,
// so independent budgets can share one Redis instance.
func (l *WindowLimiter) WithPrefix(prefix string) *WindowLimiter {
	c := *l
	c.prefix = prefix
	return &c
}

// Wait blocks until the shared window admits one more request.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	waited := false

	for {
		state, err := l.acquire(ctx)
		if err != nil {
			return err
		}

		fecRateLimitRemaining.Set(float64(state.Remaining()))

		if state.Admitted() {
			if waited {
				fecRateLimitWaitSeconds.WithLabelValues("redis_window").Observe(time.Since(start).Seconds())
			}
			return nil
		}

		if !waited {
			fecRateLimitWaitsTotal.WithLabelValues("redis_window").Inc()
			waited = true
		}

		wait := state.timeUntilReset(l.now())
		l.logger.Debug().
			Int64("count", state.Count).
			Int("limit", state.Limit).
			Dur("wait_duration", wait).
			Msg("Shared rate limit window exhausted - waiting for reset")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// State returns the current window without consuming from it.
func (l *WindowLimiter) State(ctx context.Context) (*WindowState, error) {
	windowStart := l.windowStart(l.now())

	count, err := l.redis.Get(ctx, l.key(windowStart)).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get window counter: %w", err)
	}

	return &WindowState{
		Count:       count,
		Limit:       l.limit,
		WindowStart: windowStart,
		ResetAt:     windowStart.Add(l.window),
	}, nil
}

// acquire records one acquisition in the current window.
func (l *WindowLimiter) acquire(ctx context.Context) (*WindowState, error) {
	windowStart := l.windowStart(l.now())
	key := l.key(windowStart)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// keep the counter a little past the window so late readers still see it
	pipe.PExpire(ctx, key, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("increment window counter: %w", err)
	}

	return &WindowState{
		Count:       incr.Val(),
		Limit:       l.limit,
		WindowStart: windowStart,
		ResetAt:     windowStart.Add(l.window),
	}, nil
}

func (l *WindowLimiter) windowStart(now time.Time) time.Time {
	ms := now.UnixMilli()
	size := l.window.Milliseconds()
	return time.UnixMilli(ms - ms%size)
}

func (l *WindowLimiter) key(windowStart time.Time) string {
	return l.prefix + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}
