// Package batch implements resilient chunked upserts with row-level fallback.
//
// Rows are written in chunks, one bulk statement per chunk. When a chunk
// fails, it is rolled back and replayed row by row, each row inside its own
// savepoint, so a single bad row costs only itself.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultChunkSize is the number of rows per bulk statement.
const DefaultChunkSize = 500

// Prometheus metrics for batch upserts.
var (
	upsertRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_upsert_rows_total",
		Help: "Total rows processed by the batch upsert engine by table and result",
	}, []string{"table", "result"})

	upsertFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_upsert_fallbacks_total",
		Help: "Total chunks replayed row by row after a failed bulk upsert",
	}, []string{"table"})

	upsertChunkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fec_upsert_chunk_duration_seconds",
		Help:    "Duration of one chunk upsert by table and path (bulk or fallback)",
		Buckets: prometheus.DefBuckets,
	}, []string{"table", "path"})
)

// Stats summarizes one UpsertBatch call.
type Stats struct {
	// Upserted counts rows written, duplicates inside a chunk included.
	Upserted int

	// Errors counts rows rejected during row-by-row fallback.
	Errors int

	// FailedIDs lists the keys of rejected rows in input order.
	FailedIDs []string

	// Failures pairs every rejected key with its cause.
	Failures []RecordFailure

	// Chunks counts chunks processed; Fallbacks those replayed row by row.
	Chunks    int
	Fallbacks int
}

// RecordFailure is one row that could not be persisted.
type RecordFailure struct {
	Key string
	Err error
}

func (f RecordFailure) Error() string {
	return fmt.Sprintf("row %s: %v", f.Key, f.Err)
}

func (f RecordFailure) Unwrap() error {
	return f.Err
}

// Engine upserts rows of one table.
type Engine struct {
	store     store.Store
	table     store.Table
	chunkSize int
	logger    zerolog.Logger
}

// NewEngine creates an engine. A chunkSize below 1 selects DefaultChunkSize.
func NewEngine(st store.Store, table store.Table, chunkSize int, logger zerolog.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	return &Engine{
		store:     st,
		table:     table,
		chunkSize: chunkSize,
		logger: logger.With().
			Str("component", "batch-upsert").
			Str("table", table.Name).
			Logger(),
	}, nil
}

// ChunkSize returns the configured chunk size.
func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// UpsertBatch writes rows in chunks of ChunkSize.
//
// Per-row failures are reported in Stats, not as an error. An error is
// returned only when the store becomes unusable (connection lost, a
// transaction cannot be started or committed) or ctx is cancelled between
// chunks; Stats then covers the chunks that completed.
func (e *Engine) UpsertBatch(ctx context.Context, rows []store.Row) (*Stats, error) {
	stats := &Stats{}
	if len(rows) == 0 {
		return stats, nil
	}

	start := time.Now()
	chunkCtx := context.WithoutCancel(ctx)

	for offset := 0; offset < len(rows); offset += e.chunkSize {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().
				Int("upserted", stats.Upserted).
				Int("remaining", len(rows)-offset).
				Msg("Upsert cancelled between chunks")
			return stats, fmt.Errorf("upsert %s cancelled: %w", e.table.Name, err)
		}

		end := offset + e.chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		if err := e.upsertChunk(chunkCtx, rows[offset:end], offset, stats); err != nil {
			return stats, err
		}
		stats.Chunks++
	}

	evt := e.logger.Info()
	if stats.Errors > 0 {
		evt = e.logger.Warn().Strs("failed_ids", stats.FailedIDs)
	}
	evt.Int("rows", len(rows)).
		Int("upserted", stats.Upserted).
		Int("errors", stats.Errors).
		Int("chunks", stats.Chunks).
		Int("fallbacks", stats.Fallbacks).
		Dur("duration", time.Since(start)).
		Msg("Batch upsert complete")

	return stats, nil
}

func (e *Engine) upsertChunk(ctx context.Context, chunk []store.Row, offset int, stats *Stats) error {
	start := time.Now()

	// One statement cannot apply the same key twice without hiding the
	// earlier rows, so repeated keys replay in order, one row at a time.
	if dup, ok := firstDuplicateKey(e.table, chunk); ok {
		e.logger.Debug().
			Str("key", dup).
			Int("offset", offset).
			Int("size", len(chunk)).
			Msg("Chunk repeats a key, upserting row-by-row")
		return e.replay(ctx, chunk, stats)
	}

	err := e.bulk(ctx, chunk)
	if err == nil {
		upsertChunkDuration.WithLabelValues(e.table.Name, "bulk").Observe(time.Since(start).Seconds())
		upsertRowsTotal.WithLabelValues(e.table.Name, "upserted").Add(float64(len(chunk)))
		stats.Upserted += len(chunk)
		return nil
	}

	if store.IsConnectionError(err) {
		e.logger.Error().Err(err).Int("offset", offset).Msg("Database connection lost during bulk upsert")
		return fmt.Errorf("bulk upsert at row %d: %w", offset, err)
	}

	e.logger.Warn().
		Err(err).
		Int("offset", offset).
		Int("size", len(chunk)).
		Msg("Bulk upsert failed, falling back to row-by-row")
	return e.replay(ctx, chunk, stats)
}

// replay runs the row-by-row path for a chunk and records it as a fallback.
func (e *Engine) replay(ctx context.Context, chunk []store.Row, stats *Stats) error {
	upsertFallbacksTotal.WithLabelValues(e.table.Name).Inc()
	stats.Fallbacks++

	start := time.Now()
	err := e.fallback(ctx, chunk, stats)
	upsertChunkDuration.WithLabelValues(e.table.Name, "fallback").Observe(time.Since(start).Seconds())
	return err
}

// bulk writes the chunk with a single statement in its own transaction.
func (e *Engine) bulk(ctx context.Context, chunk []store.Row) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.Upsert(ctx, e.table, chunk); err != nil {
		return err
	}
	return tx.Commit()
}

// fallback replays the chunk one row at a time in a fresh transaction,
// each row inside its own savepoint, and commits once at the end.
// Stats are only updated after the commit succeeds.
func (e *Engine) fallback(ctx context.Context, chunk []store.Row, stats *Stats) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("starting fallback transaction: %w", err)
	}
	defer tx.Rollback()

	upserted := 0
	var failures []RecordFailure

	for _, row := range chunk {
		row := row
		key := e.table.Key(row)

		err := tx.Savepoint(ctx, func() error {
			return tx.Upsert(ctx, e.table, []store.Row{row})
		})
		if err == nil {
			upserted++
			continue
		}

		if store.IsConnectionError(err) {
			e.logger.Error().Err(err).Str("key", key).Msg("Database connection lost during fallback")
			return fmt.Errorf("fallback upsert of %s: %w", key, err)
		}

		e.logger.Error().
			Err(err).
			Str("key", key).
			Msg("Row rejected")
		failures = append(failures, RecordFailure{Key: key, Err: err})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fallback chunk: %w", err)
	}

	stats.Upserted += upserted
	stats.Errors += len(failures)
	for _, f := range failures {
		stats.FailedIDs = append(stats.FailedIDs, f.Key)
	}
	stats.Failures = append(stats.Failures, failures...)

	upsertRowsTotal.WithLabelValues(e.table.Name, "upserted").Add(float64(upserted))
	upsertRowsTotal.WithLabelValues(e.table.Name, "failed").Add(float64(len(failures)))
	return nil
}

// firstDuplicateKey reports the first key that occurs more than once in rows.
func firstDuplicateKey(table store.Table, rows []store.Row) (string, bool) {
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := table.Key(row)
		if _, ok := seen[key]; ok {
			return key, true
		}
		seen[key] = struct{}{}
	}
	return "", false
}

// Err joins every row failure, or returns nil when there were none.
func (s *Stats) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Failures))
	for _, f := range s.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
