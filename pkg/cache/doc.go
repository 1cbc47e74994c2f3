// Package cache stores harvested pages in Redis.
//
// A harvest that fails halfway can be re-run: pages still fresh are served
// from Redis without a request, and stale pages carrying an ETag or
// Last-Modified validator are revalidated with a conditional request, so an
// unchanged page costs a 304 instead of a full body.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.KeyFor("users", req.URL)
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch
//	case entry.IsExpired():
//		cache.AddConditionalHeaders(req, entry)
//	default:
//		// use entry.Data
//	}
//
// # Freshness
//
// Freshness comes from Cache-Control max-age, then Expires, then a default
// TTL. Cache-Control no-store responses are never stored. Entries with a
// validator stay in Redis for a retention window after they expire.
//
// # Metrics
//
//   - harvester_cache_hits_total
//   - harvester_cache_misses_total
//   - harvester_cache_not_modified_total
//   - harvester_cache_errors_total{operation}
package cache
