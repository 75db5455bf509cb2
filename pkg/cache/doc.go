// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// It backs the in-memory tenant lookup cache and is small enough to be reused
// wherever a bounded map with recency eviction is needed.
//
//	c := cache.NewLRUCache[string, *tenant.Tenant](1000, cache.WithTTL(time.Minute))
//	c.Put("slug:acme", t)
//	if t, ok := c.Get("slug:acme"); ok {
//		// use t
//	}
//
// Expired entries are dropped lazily by Get and in bulk by RemoveExpired.
// An eviction callback, when set, observes every entry that leaves the cache.
package cache
