package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int

	// MaxPages caps the number of pages fetched; 0 means unbounded
	MaxPages int
}

// DefaultConfig returns safe default configuration for the FEC API
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		MaxPages:       0,
	}
}

// PageFetcher fetches a single page. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.PageEnvelope, error)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Records    []client.Record
	Error      error
}

// Result is the aggregate of a FetchAll call.
type Result struct {
	// Records holds the results of every successful page, in page order.
	Records []client.Record

	// TotalPages is the page count the API reported (or discovered by
	// fetching until an empty page).
	TotalPages int

	// PagesFetched counts successful pages, page 1 included.
	PagesFetched int

	// FailedPages lists pages that were dropped after their fetch failed.
	FailedPages []int
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll fetches every page of the query described by req.
//
// Only a failure on page 1 or a cancelled context is returned as an error.
// Failures on later pages are logged and listed in Result.FailedPages.
func (bf *BatchFetcher) FetchAll(ctx context.Context, req client.PageRequest) (*Result, error) {
	start := time.Now()
	endpoint := req.Endpoint

	first, err := bf.fetcher.FetchPage(ctx, req.WithPage(1))
	if err != nil {
		bf.logger.Error().
			Err(err).
			Str("endpoint", endpoint).
			Int("page", 1).
			Msg("Failed to fetch first page")
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages, known := first.TotalPages()

	// An empty first page ends the fetch regardless of the reported total.
	if len(first.Results) == 0 {
		bf.logger.Info().
			Str("endpoint", endpoint).
			Int("reported_pages", totalPages).
			Msg("First page empty, nothing to fetch")
		return &Result{Records: []client.Record{}, TotalPages: totalPages, PagesFetched: 1}, nil
	}

	if !known {
		return bf.fetchUntilEmpty(ctx, req, first, start)
	}

	lastPage := totalPages
	if bf.config.MaxPages > 0 && lastPage > bf.config.MaxPages {
		lastPage = bf.config.MaxPages
	}

	bf.logger.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Int("pages_to_fetch", lastPage).
		Msg("Starting parallel page fetch")

	if lastPage <= 1 {
		bf.logger.Info().
			Str("endpoint", endpoint).
			Int("pages", 1).
			Int("records", len(first.Results)).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return &Result{Records: first.Results, TotalPages: totalPages, PagesFetched: 1}, nil
	}

	remaining := lastPage - 1

	// Both channels hold every remaining page so neither side ever blocks.
	pageQueue := make(chan int, remaining)
	pageResults := make(chan PageResult, remaining)

	for page := 2; page <= lastPage; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := bf.config.MaxConcurrency
	if workers > remaining {
		workers = remaining
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, req, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	pages := map[int][]client.Record{1: first.Results}
	var failed []int

	for result := range pageResults {
		if result.Error != nil {
			failed = append(failed, result.PageNumber)
			continue
		}

		pages[result.PageNumber] = result.Records

		if len(pages)%50 == 0 {
			bf.logger.Info().
				Int("fetched", len(pages)).
				Int("total", lastPage).
				Float64("progress_pct", float64(len(pages))/float64(lastPage)*100).
				Msg("Fetch progress")
		}
	}

	if err := ctx.Err(); err != nil {
		bf.logger.Warn().
			Str("endpoint", endpoint).
			Int("fetched_pages", len(pages)).
			Int("total_pages", lastPage).
			Msg("Fetch cancelled, discarding partial results")
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	sort.Ints(failed)
	result := &Result{
		Records:      concatPages(pages),
		TotalPages:   totalPages,
		PagesFetched: len(pages),
		FailedPages:  failed,
	}

	evt := bf.logger.Info()
	if len(failed) > 0 {
		evt = bf.logger.Warn().Ints("failed_pages", failed)
	}
	evt.Str("endpoint", endpoint).
		Int("pages", result.PagesFetched).
		Int("total", lastPage).
		Int("records", len(result.Records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, req client.PageRequest, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		envelope, err := bf.fetcher.FetchPage(ctx, req.WithPage(pageNum))
		if err != nil {
			bf.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
			results <- PageResult{PageNumber: pageNum, Error: err}
			continue
		}

		results <- PageResult{PageNumber: pageNum, Records: envelope.Results}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// fetchUntilEmpty walks pages sequentially when the API does not report a
// page count. It stops at the first empty page, the first failure or MaxPages.
func (bf *BatchFetcher) fetchUntilEmpty(ctx context.Context, req client.PageRequest, first *client.PageEnvelope, start time.Time) (*Result, error) {
	endpoint := req.Endpoint
	result := &Result{
		Records:      append([]client.Record(nil), first.Results...),
		TotalPages:   1,
		PagesFetched: 1,
	}

	bf.logger.Info().
		Str("endpoint", endpoint).
		Msg("No page count reported, fetching until empty page")

	for page := 2; bf.config.MaxPages == 0 || page <= bf.config.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
		}

		envelope, err := bf.fetcher.FetchPage(ctx, req.WithPage(page))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetch %s: %w", endpoint, ctxErr)
			}
			bf.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("page", page).
				Msg("Page fetch failed, stopping sequential fetch")
			result.FailedPages = append(result.FailedPages, page)
			break
		}

		if len(envelope.Results) == 0 {
			break
		}

		result.Records = append(result.Records, envelope.Results...)
		result.PagesFetched++
		result.TotalPages = page
	}

	bf.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", result.PagesFetched).
		Int("records", len(result.Records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

func concatPages(pages map[int][]client.Record) []client.Record {
	numbers := make([]int, 0, len(pages))
	total := 0
	for n, records := range pages {
		numbers = append(numbers, n)
		total += len(records)
	}
	sort.Ints(numbers)

	out := make([]client.Record, 0, total)
	for _, n := range numbers {
		out = append(out, pages[n]...)
	}
	return out
}
