// Package metrics exposes the Prometheus metrics of fec-ingest.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, batch, ingest) to maintain modularity and avoid circular
// dependencies; this package serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by fec-ingest.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry the handler reads from.
var Gatherer = prometheus.DefaultGatherer

const shutdownTimeout = 5 * time.Second

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is closed; a failure to bind is returned immediately.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", addr, err)
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fec_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - fec_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - fec_errors_total{kind} (Counter): Failed attempts by error kind
//
// Retry Metrics (pkg/client):
//   - fec_retries_total{kind} (Counter): Retry attempts by error kind
//   - fec_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - fec_retry_exhausted_total{kind} (Counter): Requests that exhausted max attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fec_rate_limit_waits_total{limiter} (Counter): Requests that waited for a token
//   - fec_rate_limit_wait_seconds{limiter} (Histogram): Time spent waiting for a token
//   - fec_rate_limit_remaining (Gauge): Requests left in the shared Redis window
//
// Cache Metrics (pkg/cache):
//   - fec_cache_hits_total (Counter): Page cache hits
//   - fec_cache_misses_total (Counter): Page cache misses
//   - fec_cache_errors_total{operation} (Counter): Cache operation errors
//
// Persistence Metrics (pkg/batch):
//   - fec_upsert_rows_total{table, result} (Counter): Rows upserted or failed
//   - fec_upsert_fallbacks_total{table} (Counter): Chunks replayed row by row
//   - fec_upsert_chunk_duration_seconds{table, path} (Histogram): Chunk duration by bulk/fallback path
//
// Ingestion Metrics (pkg/ingest):
//   - fec_ingest_runs_total{entity, result} (Counter): Entity runs by outcome
//   - fec_ingest_records_total{entity, stage} (Counter): Records per pipeline stage
//
// Example Prometheus Queries:
//
//   # Fallback rate
//   rate(fec_upsert_fallbacks_total[1h])
//
//   # Row failure ratio
//   sum(rate(fec_upsert_rows_total{result="failed"}[1h])) /
//   sum(rate(fec_upsert_rows_total[1h]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fec_request_duration_seconds_bucket[5m]))
//
//   # Rate limit headroom
//   fec_rate_limit_remaining < 50
