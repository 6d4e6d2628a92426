// Package ingest wires fetching, validation and persistence into per-entity
// pipelines and runs them in dependency order.
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/batch"
	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/Sternrassler/fec-ingest/pkg/pagination"
	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/Sternrassler/fec-ingest/pkg/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for ingestion runs.
var (
	ingestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_ingest_runs_total",
		Help: "Total entity ingestion runs by entity and result",
	}, []string{"entity", "result"})

	ingestRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_ingest_records_total",
		Help: "Total records seen by ingestion stage (fetched, rejected, upserted, failed)",
	}, []string{"entity", "stage"})
)

// Source fetches the raw records of one window.
type Source interface {
	Fetch(ctx context.Context, w Window) (*pagination.Result, error)
}

// Transformer validates raw records and maps the accepted ones to rows.
type Transformer interface {
	Transform(records []client.Record, logger zerolog.Logger) ([]store.Row, []validate.Reject)
}

// Sink persists rows.
type Sink interface {
	UpsertBatch(ctx context.Context, rows []store.Row) (*batch.Stats, error)
}

// Report summarizes one pipeline run.
type Report struct {
	Entity      string
	RunID       string
	Window      Window
	Fetched     int
	FailedPages []int
	Rejected    []validate.Reject
	Stats       *batch.Stats // nil when nothing reached persistence
	Duration    time.Duration
}

// Pipeline runs fetch, transform and upsert for one entity.
type Pipeline struct {
	Entity      string
	Source      Source
	Transformer Transformer
	Sink        Sink
	Logger      zerolog.Logger
}

// Run executes the pipeline over w. When no record survives validation,
// the sink is not called and Report.Stats is nil.
func (p *Pipeline) Run(ctx context.Context, w Window) (*Report, error) {
	start := time.Now()
	logger := p.Logger.With().Str("entity", p.Entity).Logger()
	report := &Report{Entity: p.Entity, Window: w}

	logger.Info().
		Str("start_date", w.StartDate()).
		Str("end_date", w.EndDate()).
		Msg("Syncing entity")

	fetched, err := p.Source.Fetch(ctx, w)
	if err != nil {
		ingestRunsTotal.WithLabelValues(p.Entity, "fetch_error").Inc()
		return report, fmt.Errorf("fetching %s: %w", p.Entity, err)
	}
	report.Fetched = len(fetched.Records)
	report.FailedPages = fetched.FailedPages
	ingestRecordsTotal.WithLabelValues(p.Entity, "fetched").Add(float64(report.Fetched))

	rows, rejects := p.Transformer.Transform(fetched.Records, logger)
	report.Rejected = rejects
	ingestRecordsTotal.WithLabelValues(p.Entity, "rejected").Add(float64(len(rejects)))

	if len(rows) == 0 {
		logger.Info().Int("fetched", report.Fetched).Msg("No records found to ingest")
		report.Duration = time.Since(start)
		ingestRunsTotal.WithLabelValues(p.Entity, "empty").Inc()
		return report, nil
	}

	stats, err := p.Sink.UpsertBatch(ctx, rows)
	report.Stats = stats
	report.Duration = time.Since(start)
	if stats != nil {
		ingestRecordsTotal.WithLabelValues(p.Entity, "upserted").Add(float64(stats.Upserted))
		ingestRecordsTotal.WithLabelValues(p.Entity, "failed").Add(float64(stats.Errors))
	}
	if err != nil {
		ingestRunsTotal.WithLabelValues(p.Entity, "store_error").Inc()
		logger.Error().Err(err).Msg("Ingestion failed")
		return report, fmt.Errorf("persisting %s: %w", p.Entity, err)
	}

	ingestRunsTotal.WithLabelValues(p.Entity, "ok").Inc()
	logger.Info().
		Int("fetched", report.Fetched).
		Int("rejected", len(rejects)).
		Int("upserted", stats.Upserted).
		Int("errors", stats.Errors).
		Dur("duration", report.Duration).
		Msg("Entity complete")

	return report, nil
}

// AllFetcher fetches every page of a query. *pagination.BatchFetcher implements it.
type AllFetcher interface {
	FetchAll(ctx context.Context, req client.PageRequest) (*pagination.Result, error)
}

// PaginatedSource fetches an endpoint page by page.
type PaginatedSource struct {
	Fetcher  AllFetcher
	Endpoint string

	// Params maps the window onto the endpoint's query parameters.
	Params func(w Window) url.Values

	// Extra parameters are added to every request.
	Extra url.Values
}

// Fetch implements Source.
func (s *PaginatedSource) Fetch(ctx context.Context, w Window) (*pagination.Result, error) {
	params := url.Values{}
	if s.Params != nil {
		params = s.Params(w)
	}
	for k, vals := range s.Extra {
		for _, v := range vals {
			params.Add(k, v)
		}
	}
	return s.Fetcher.FetchAll(ctx, client.NewPageRequest(s.Endpoint, params))
}

// RowMapper is a validated value that can be persisted.
type RowMapper interface {
	Row() store.Row
}

// ValidatingTransformer runs a validator over raw records and maps the
// accepted values to rows.
type ValidatingTransformer[T RowMapper] struct {
	Validator validate.Validator[T]
	KeyField  string
}

// Transform implements Transformer.
func (t ValidatingTransformer[T]) Transform(records []client.Record, logger zerolog.Logger) ([]store.Row, []validate.Reject) {
	accepted, rejects := validate.Transform(records, t.Validator, t.KeyField, logger)
	rows := make([]store.Row, 0, len(accepted))
	for _, v := range accepted {
		rows = append(rows, v.Row())
	}
	return rows, rejects
}
