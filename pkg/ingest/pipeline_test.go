package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/fec-ingest/pkg/batch"
	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/Sternrassler/fec-ingest/pkg/pagination"
	"github.com/Sternrassler/fec-ingest/pkg/store"
	"github.com/Sternrassler/fec-ingest/pkg/validate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []client.Record
	err     error
	window  Window
}

func (s *fakeSource) Fetch(ctx context.Context, w Window) (*pagination.Result, error) {
	s.window = w
	if s.err != nil {
		return nil, s.err
	}
	return &pagination.Result{Records: s.records, PagesFetched: 1, FailedPages: []int{3}}, nil
}

type fakeSink struct {
	calls int
	rows  []store.Row
	stats *batch.Stats
	err   error
}

func (s *fakeSink) UpsertBatch(ctx context.Context, rows []store.Row) (*batch.Stats, error) {
	s.calls++
	s.rows = rows
	if s.stats == nil {
		s.stats = &batch.Stats{Upserted: len(rows)}
	}
	return s.stats, s.err
}

func newPipeline(src Source, sink Sink) *Pipeline {
	return &Pipeline{
		Entity:      "candidates",
		Source:      src,
		Transformer: Candidates.Transformer,
		Sink:        sink,
		Logger:      zerolog.Nop(),
	}
}

func TestPipeline_Run(t *testing.T) {
	src := &fakeSource{records: []client.Record{
		{"candidate_id": "H001", "name": "DOE, JANE", "office": "h", "state": "CA"},
		{"name": "NO ID"},
		{"candidate_id": "S002", "name": "ROE, RICHARD", "office": "S", "state": "NY"},
	}}
	sink := &fakeSink{}
	w := Window{Start: date(2024, 1, 1), End: date(2024, 1, 7)}

	report, err := newPipeline(src, sink).Run(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, w, src.window)
	assert.Equal(t, 3, report.Fetched)
	assert.Len(t, report.Rejected, 1)
	assert.Equal(t, []int{3}, report.FailedPages)
	require.NotNil(t, report.Stats)
	assert.Equal(t, 2, report.Stats.Upserted)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, "Jane Doe", sink.rows[0]["name"])
	assert.Equal(t, "H", sink.rows[0]["office"])
}

func TestPipeline_EmptyTransformSkipsPersistence(t *testing.T) {
	src := &fakeSource{records: []client.Record{{"name": "NO ID"}}}
	sink := &fakeSink{}

	report, err := newPipeline(src, sink).Run(context.Background(), Window{})
	require.NoError(t, err)

	assert.Equal(t, 0, sink.calls)
	assert.Nil(t, report.Stats)
	assert.Equal(t, 1, report.Fetched)
}

func TestPipeline_FetchErrorPropagates(t *testing.T) {
	fetchErr := client.NewAPIError(client.KindAuth, 403, "Forbidden", nil)
	sink := &fakeSink{}

	_, err := newPipeline(&fakeSource{err: fetchErr}, sink).Run(context.Background(), Window{})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.KindAuth, apiErr.Kind)
	assert.Equal(t, 0, sink.calls)
}

func TestPipeline_StoreErrorPropagatesWithStats(t *testing.T) {
	storeErr := errors.New("connection lost")
	src := &fakeSource{records: []client.Record{{"candidate_id": "H001", "name": "A"}}}
	sink := &fakeSink{stats: &batch.Stats{Upserted: 0}, err: storeErr}

	report, err := newPipeline(src, sink).Run(context.Background(), Window{})
	assert.ErrorIs(t, err, storeErr)
	require.NotNil(t, report)
	assert.NotNil(t, report.Stats)
}

func TestValidatingTransformer(t *testing.T) {
	tr := ValidatingTransformer[validate.Candidate]{Validator: validate.CandidateValidator{}, KeyField: "candidate_id"}

	rows, rejects := tr.Transform([]client.Record{
		{"candidate_id": "C001", "name": "Valid", "district": "9"},
		{"candidate_id": "C002"},
	}, zerolog.Nop())

	require.Len(t, rows, 1)
	assert.Equal(t, "09", rows[0]["district"])
	require.Len(t, rejects, 1)
	assert.Equal(t, "C002", rejects[0].Key)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"candidates"}, r.Names())

	e, err := r.Get("candidates")
	require.NoError(t, err)
	assert.Equal(t, "/candidates/", e.Endpoint)

	_, err = r.Get("filings")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = NewRegistry(Candidates, Candidates)
	assert.EqualError(t, err, `entity "candidates" registered twice`)
}

func TestCandidatesParams(t *testing.T) {
	params := Candidates.Params(Window{Start: date(2023, 8, 1), End: date(2023, 9, 1)})
	assert.Equal(t, "2023-08-01", params.Get("min_first_file_date"))
	assert.Equal(t, "2023-09-01", params.Get("max_first_file_date"))
}
