// Package client provides the FEC API HTTP client with rate limiting,
// retry, error classification and optional page caching.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/cache"
	"github.com/Sternrassler/fec-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the OpenFEC API root.
const DefaultBaseURL = "https://api.open.fec.gov/v1"

// Prometheus metrics for FEC client operations.
var (
	fecRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_requests_total",
		Help: "Total FEC API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	fecRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fec_request_duration_seconds",
		Help:    "FEC API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	fecErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_errors_total",
		Help: "Total FEC API errors by kind",
	}, []string{"kind"})
)

// Client is the FEC API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    ratelimit.Limiter
	cache      *cache.Manager
	retrier    *Retrier
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.open.fec.gov/v1
	BaseURL string

	// APIKey is sent as the api_key query parameter (REQUIRED)
	APIKey string

	// UserAgent header
	UserAgent string

	// Limiter gates every HTTP attempt (REQUIRED)
	Limiter ratelimit.Limiter

	// Cache is optional; nil disables page caching
	Cache *cache.Manager

	// RequestTimeout bounds each HTTP attempt
	RequestTimeout time.Duration

	// PerPage is sent when the caller does not set per_page
	PerPage int

	// Retry
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string, limiter ratelimit.Limiter) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		APIKey:         apiKey,
		UserAgent:      "fec-ingest/0.1.0",
		Limiter:        limiter,
		RequestTimeout: 30 * time.Second,
		PerPage:        100,
		Retry:          DefaultRetryConfig(),
	}
}

// New creates a new FEC client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be > 0 (got %s)", cfg.RequestTimeout)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	logger := log.With().Str("component", "fec-client").Logger()

	return &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		retrier:    NewRetrier(cfg.Retry, logger),
		config:     cfg,
		logger:     logger,
	}, nil
}

// FetchPage fetches and decodes one page.
//
// Every HTTP attempt, including retries, first takes a token from the rate
// limiter and runs under its own RequestTimeout. On failure the returned
// error wraps the *APIError of the last attempt.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*PageEnvelope, error) {
	if req.Page < 1 {
		return nil, fmt.Errorf("invalid page number %d", req.Page)
	}

	cacheKey := cache.Key{
		Base:     c.baseURL.Host + c.baseURL.Path,
		Endpoint: req.Endpoint,
		Params:   c.queryParams(req),
		Page:     req.Page,
	}
	if envelope := c.fromCache(ctx, cacheKey); envelope != nil {
		return envelope, nil
	}

	var envelope *PageEnvelope
	var body []byte

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		env, raw, err := c.attempt(ctx, req)
		if err != nil {
			return err
		}
		envelope, body = env, raw
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", req.Endpoint, req.Page, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("Failed to cache page")
		}
	}

	return envelope, nil
}

// attempt performs exactly one rate-limited HTTP round trip.
func (c *Client) attempt(ctx context.Context, req PageRequest) (*PageEnvelope, []byte, error) {
	endpoint := req.Endpoint

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.buildURL(req), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("page", req.Page).
		Msg("Executing FEC request")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	fecRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordError(endpoint, req.Page, err)
		fecRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, nil, err
	}
	defer resp.Body.Close()

	fecRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused; the error body is not needed
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        endpoint,
		}
		c.recordError(endpoint, req.Page, statusErr)
		return nil, nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(endpoint, req.Page, err)
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	envelope, err := DecodeEnvelope(body)
	if err != nil {
		c.recordError(endpoint, req.Page, err)
		return nil, nil, err
	}

	return envelope, body, nil
}

// recordError classifies err for observability.
func (c *Client) recordError(endpoint string, page int, err error) {
	classified := Classify(err)
	fecErrorsTotal.WithLabelValues(string(classified.Kind)).Inc()

	evt := c.logger.Warn()
	if !classified.Retryable {
		evt = c.logger.Error()
	}
	evt.Err(err).
		Str("endpoint", endpoint).
		Int("page", page).
		Int("status", classified.StatusCode).
		Str("error_kind", string(classified.Kind)).
		Bool("retryable", classified.Retryable).
		Msg("FEC request error")
}

// fromCache returns a cached envelope, or nil on miss or any cache problem.
func (c *Client) fromCache(ctx context.Context, key cache.Key) *PageEnvelope {
	if c.cache == nil {
		return nil
	}

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", key.Endpoint).Msg("Cache get error")
		}
		return nil
	}

	envelope, err := DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", key.Endpoint).Msg("Discarding undecodable cache entry")
		_ = c.cache.Delete(ctx, key)
		return nil
	}

	c.logger.Debug().Str("endpoint", key.Endpoint).Int("page", key.Page).Msg("Serving page from cache")
	return envelope
}

// queryParams returns the request's query with the page and default
// per_page applied, but without the API key.
func (c *Client) queryParams(req PageRequest) url.Values {
	params := cloneValues(req.Params)
	params.Set("page", strconv.Itoa(req.Page))
	if params.Get("per_page") == "" && c.config.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(c.config.PerPage))
	}
	return params
}

func (c *Client) buildURL(req PageRequest) string {
	params := c.queryParams(req)
	params.Set("api_key", c.config.APIKey)

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Endpoint, "/")
	u.RawQuery = params.Encode()
	return u.String()
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}
