// Package cache stores upstream query results (post-game reports,
// leaderboards, profile snapshots) keyed by caller-chosen strings.
//
// A Manager mirrors entries in memory in front of a persistent Store:
//
//   - DiskStore writes one JSON file per key under a sanitized file name
//     and keeps the directory under a byte budget by evicting the oldest
//     files.
//   - RedisStore keeps entries under "d2:payload:<key>" with an optional
//     expiry, for deployments that share a cache between processes.
//
// Store write failures never fail a Set; the entry stays in memory and
// the failure is logged.
//
// # Basic Usage
//
//	store, err := cache.NewDiskStore(dir, 100<<20)
//	if err != nil {
//		return err
//	}
//	manager := cache.NewManager(store)
//
//	key := cache.CacheKey{Endpoint: "pgcr", PathParams: map[string]string{"id": activityID}}
//	entry, err := manager.GetOrFetch(ctx, key.String(), time.Hour, func(ctx context.Context) (json.RawMessage, error) {
//		return bungie.GetPostGameCarnageReport(ctx, activityID)
//	})
//
// # Metrics
//
//   - d2_cache_hits_total{layer} - hits by layer (memory, disk, redis)
//   - d2_cache_misses_total - misses
//   - d2_cache_size_bytes{layer} - bytes on disk
//   - d2_cache_evictions_total - files removed to honour the byte budget
//   - d2_cache_errors_total{operation} - store errors
package cache
