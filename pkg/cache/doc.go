// Package cache provides a byte-value cache with in-process and Redis
// backends behind one Store interface.
//
// The service caches expensive, slowly changing lookups (the category map,
// keyed by upstream fingerprint) with an explicit TTL. Single-process
// deployments use the in-process store; deployments with several replicas
// point the store at a shared Redis so all replicas reuse one build.
//
// # Basic Usage
//
//	store := cache.NewFromConfig(cfg.Cache)
//	defer store.Close()
//
//	key := cache.Key("categories", map[string]string{"fingerprint": fp})
//
//	data, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// build and store
//		if err := store.Set(ctx, key, data, 30*time.Minute); err != nil {
//			return err
//		}
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - commerce_export_cache_hits_total{backend} - Cache hits
//   - commerce_export_cache_misses_total - Cache misses
//   - commerce_export_cache_errors_total{operation} - Cache operation errors
package cache
