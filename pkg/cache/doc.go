// Package cache provides a Redis-backed cache for decoded FEC page responses.
//
// Repeated ingestion runs over overlapping date windows tend to request the
// same pages again. With a cache configured, the client serves those pages
// from Redis without spending a rate-limit token or an HTTP round trip.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, 15*time.Minute)
//
//	key := cache.Key{
//		Base:     "api.open.fec.gov/v1",
//		Endpoint: "/candidates/",
//		Params:   url.Values{"election_year": []string{"2024"}},
//		Page:     3,
//	}
//
//	data, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then manager.Set(ctx, key, body)
//	}
//
// The API key is never part of a cache key.
//
// # Metrics
//
//   - fec_cache_hits_total - Cache hits
//   - fec_cache_misses_total - Cache misses
//   - fec_cache_errors_total{operation} - Cache operation errors
package cache
