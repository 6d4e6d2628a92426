package ingest

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/batch"
	"github.com/Sternrassler/fec-ingest/pkg/pagination"
	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request selects the window and extra query parameters of a run.
// Nil dates fall back to the configured lookback.
type Request struct {
	Start  *time.Time
	End    *time.Time
	Params url.Values
}

// Result is the outcome of one entity inside IngestAll.
type Result struct {
	Entity string
	Report *Report
	Err    error
}

// Config holds manager settings.
type Config struct {
	Pagination   pagination.Config
	ChunkSize    int
	LookbackDays int
	Location     *time.Location
}

// Manager owns the shared API client and routes runs to entity pipelines.
type Manager struct {
	fetcher  pagination.PageFetcher
	store    store.Store
	registry *Registry
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates a manager. A nil registry selects DefaultRegistry.
func NewManager(fetcher pagination.PageFetcher, st store.Store, registry *Registry, cfg Config, logger zerolog.Logger) *Manager {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if cfg.Location == nil {
		cfg.Location = DefaultLocation()
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = batch.DefaultChunkSize
	}

	return &Manager{
		fetcher:  fetcher,
		store:    st,
		registry: registry,
		config:   cfg,
		logger:   logger.With().Str("component", "ingest").Logger(),
		now:      time.Now,
	}
}

// Registry returns the entity registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Ingest runs a single entity.
func (m *Manager) Ingest(ctx context.Context, name string, req Request) (*Report, error) {
	return m.ingest(ctx, name, req, uuid.NewString())
}

// IngestAll runs the named entities, or every registered entity when names
// is empty, in registry order. A failed entity is logged and recorded; the
// remaining entities still run.
func (m *Manager) IngestAll(ctx context.Context, names []string, req Request) []Result {
	if len(names) == 0 {
		names = m.registry.Names()
	}

	runID := uuid.NewString()
	logger := m.logger.With().Str("run_id", runID).Logger()
	logger.Info().Strs("entities", names).Msg("Starting ingestion run")

	results := make([]Result, 0, len(names))
	failed := 0
	for _, name := range names {
		report, err := m.ingest(ctx, name, req, runID)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("entity", name).Msg("Entity failed")
		}
		results = append(results, Result{Entity: name, Report: report, Err: err})
	}

	logger.Info().
		Int("entities", len(names)).
		Int("failed", failed).
		Msg("Ingestion run complete")
	return results
}

func (m *Manager) ingest(ctx context.Context, name string, req Request, runID string) (*Report, error) {
	entity, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}

	w, err := ResolveWindow(req.Start, req.End, m.now(), m.config.Location, m.config.LookbackDays)
	if err != nil {
		return nil, err
	}

	logger := m.logger.With().Str("run_id", runID).Logger()

	engine, err := batch.NewEngine(m.store, entity.Table, m.config.ChunkSize, logger)
	if err != nil {
		return nil, err
	}

	pipeline := &Pipeline{
		Entity: entity.Name,
		Source: &PaginatedSource{
			Fetcher:  pagination.NewBatchFetcher(m.fetcher, m.config.Pagination),
			Endpoint: entity.Endpoint,
			Params:   entity.Params,
			Extra:    req.Params,
		},
		Transformer: entity.Transformer,
		Sink:        engine,
		Logger:      logger,
	}

	report, err := pipeline.Run(ctx, w)
	if report != nil {
		report.RunID = runID
	}
	return report, err
}

// Close releases the API client when it holds resources.
func (m *Manager) Close() error {
	if c, ok := m.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Failed returns the joined errors of failed results, or nil.
func Failed(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
