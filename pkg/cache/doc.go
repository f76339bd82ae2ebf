// Package cache provides short-lived storage for fetched library pages.
//
// Two Store implementations exist:
//
//   - MemoryStore keeps entries in process, for a single interactive session
//   - RedisStore shares entries across invocations and processes
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	key := cache.CacheKey{
//		Endpoint:    "/library/sections/1/all",
//		QueryParams: url.Values{"X-Plex-Container-Start": []string{"0"}},
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server, then
//		_ = store.Set(ctx, key, cache.NewEntry(body, 30*time.Second))
//	}
//
// Keys embed the section path, so DeletePrefix with
// CacheKey{Endpoint: "/library/sections/1/all"}.Prefix() drops every cached
// page of a section after it has been edited.
//
// # Metrics
//
//   - plexdate_cache_hits_total{layer} - Cache hits by store
//   - plexdate_cache_misses_total{layer} - Cache misses by store
//   - plexdate_cache_errors_total{operation} - Store operation errors
package cache
