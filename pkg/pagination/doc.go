// Package pagination provides parallel batch fetching for paginated FEC endpoints.
//
// The FEC API reports the total page count in the pagination block of every
// envelope. This package fetches the first page to learn it, then spreads the
// remaining pages across a bounded worker pool. The shared rate limiter inside
// the client keeps the pool within the API quota.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(fecClient, config)
//	result, err := fetcher.FetchAll(ctx, client.NewPageRequest("/candidates/", params))
//
// The batch fetcher:
//   - Fetches page 1 synchronously; its failure fails the whole fetch
//   - Returns immediately when page 1 is empty, whatever total it reports
//   - Spawns a worker pool (default 5 workers) for pages 2..N
//   - Logs and records failed pages and returns the rest
//   - Falls back to sequential fetch-until-empty when no total is reported
package pagination
