// Package cache provides a Redis-backed cache for hub metadata lookups.
//
// Column counts of a data view are derived from its resolved data items,
// which change rarely but cost one upstream round trip per query. The
// cache keeps the raw item payloads for a fixed TTL so that repeated
// page-size derivations and batch fetches do not hit the hub again.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Namespace:  "fermentation",
//		DataViewID: "HubDV_Fermenter_1",
//		QueryID:    "Asset_value",
//	}
//
//	data, err := manager.Fetch(ctx, key, 10*time.Minute, func(ctx context.Context) ([]byte, error) {
//		return fetchFromHub(ctx)
//	})
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - hub_cache_hits_total{layer="redis"} - Cache hits
//   - hub_cache_misses_total - Cache misses
//   - hub_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - hub_cache_errors_total{operation} - Cache operation errors
package cache
