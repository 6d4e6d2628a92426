package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/fec-ingest/internal/config"
	"github.com/Sternrassler/fec-ingest/pkg/cache"
	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/Sternrassler/fec-ingest/pkg/logging"
	"github.com/Sternrassler/fec-ingest/pkg/ratelimit"
	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/redis/go-redis/v9"
)

// deps holds the shared resources of one command invocation.
type deps struct {
	redis  *redis.Client
	client *client.Client
	store  *store.SQLStore
}

// openDeps connects Redis (when the limiter or cache needs it), the API
// client and the database.
func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	if err := cfg.RequireDSN(); err != nil {
		return nil, err
	}

	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if cfg.Limiter == config.LimiterRedis || cfg.CacheTTL > 0 {
		rc, err := newRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.redis = rc
	}

	limiter, err := newLimiter(cfg, d.redis)
	if err != nil {
		return nil, err
	}

	var pageCache *cache.Manager
	if cfg.CacheTTL > 0 {
		pageCache = cache.NewManager(d.redis, cfg.CacheTTL)
	}

	d.client, err = newClient(cfg, limiter, pageCache)
	if err != nil {
		return nil, err
	}

	d.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

// Close releases every resource that was opened.
func (d *deps) Close() error {
	var errs []error
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	return errors.Join(errs...)
}

func newRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FEC_REDIS_URL: %w", err)
	}

	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return rc, nil
}

func newLimiter(cfg config.Config, rc *redis.Client) (ratelimit.Limiter, error) {
	if cfg.Limiter == config.LimiterRedis {
		wl, err := ratelimit.NewWindowLimiter(rc, cfg.RateRequests, cfg.RateWindow, logging.NewLogger("ratelimit"))
		if err != nil {
			return nil, fmt.Errorf("redis rate limiter: %w", err)
		}
		return wl, nil
	}

	tb, err := ratelimit.NewTokenBucket(cfg.RateRequests, cfg.RateWindow, cfg.RateBurst)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return tb, nil
}

func newClient(cfg config.Config, limiter ratelimit.Limiter, pageCache *cache.Manager) (*client.Client, error) {
	ccfg := client.DefaultConfig(cfg.APIKey, limiter)
	ccfg.BaseURL = cfg.APIBaseURL
	ccfg.UserAgent = cfg.UserAgent
	ccfg.Cache = pageCache
	ccfg.RequestTimeout = cfg.RequestTimeout
	ccfg.PerPage = cfg.PerPage
	ccfg.Retry = client.RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BackoffBase,
		MaxBackoff:  cfg.BackoffMax,
	}

	c, err := client.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create FEC client: %w", err)
	}
	return c, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.SQLStore, error) {
	if err := cfg.RequireDSN(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", st.Dialect(), err)
	}
	return st, nil
}
