package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/pkg/cache"
)

// Cache stores tenant records by lookup key. Implementations must be safe
// for concurrent use and may drop entries at any time.
type Cache interface {
	Get(ctx context.Context, key string) (*Tenant, bool)
	Set(ctx context.Context, key string, t *Tenant)
	Delete(ctx context.Context, keys ...string)
}

// Cache keys. Exported so out-of-process caches share the layout.
func SlugKey(slug string) string          { return "slug:" + slug }
func SubdomainKey(subdomain string) string { return "sub:" + subdomain }
func DomainKey(domain string) string       { return "domain:" + domain }
func IDKey(id uuid.UUID) string            { return "id:" + id.String() }

// Keys returns every cache key under which t may be stored.
func Keys(t *Tenant) []string {
	keys := []string{IDKey(t.ID), SlugKey(t.Slug), SubdomainKey(t.Subdomain)}
	if t.Domain != "" {
		keys = append(keys, DomainKey(t.Domain))
	}
	return keys
}

// MemoryCache is a process-local Cache backed by an LRU with TTL.
type MemoryCache struct {
	lru *cache.LRUCache[string, *Tenant]
}

// NewMemoryCache creates a MemoryCache holding at most size tenants for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: cache.NewLRUCache[string, *Tenant](size, cache.WithTTL(ttl))}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Tenant, bool) {
	t, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, key string, t *Tenant) {
	c.lru.Put(key, t.Clone())
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		c.lru.Remove(k)
	}
}

// CachedRegistry decorates a Registry with a lookup cache.
// Every write through it invalidates the keys of the old and new record.
// Writes made by other processes become visible after the cache TTL.
type CachedRegistry struct {
	Registry
	cache Cache
}

// NewCachedRegistry wraps next with c.
func NewCachedRegistry(next Registry, c Cache) *CachedRegistry {
	return &CachedRegistry{Registry: next, cache: c}
}

func (r *CachedRegistry) lookup(ctx context.Context, key string, load func() (*Tenant, error)) (*Tenant, error) {
	if t, ok := r.cache.Get(ctx, key); ok {
		return t, nil
	}
	t, err := load()
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, t)
	return t, nil
}

func (r *CachedRegistry) FindBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return r.lookup(ctx, SlugKey(slug), func() (*Tenant, error) { return r.Registry.FindBySlug(ctx, slug) })
}

func (r *CachedRegistry) FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return r.lookup(ctx, SubdomainKey(subdomain), func() (*Tenant, error) { return r.Registry.FindBySubdomain(ctx, subdomain) })
}

func (r *CachedRegistry) FindByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return r.lookup(ctx, DomainKey(domain), func() (*Tenant, error) { return r.Registry.FindByDomain(ctx, domain) })
}

func (r *CachedRegistry) FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.lookup(ctx, IDKey(id), func() (*Tenant, error) { return r.Registry.FindByID(ctx, id) })
}

func (r *CachedRegistry) Create(ctx context.Context, spec CreateSpec) (*Tenant, error) {
	t, err := r.Registry.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	// Drop anything cached under the new keys by an earlier lookup race.
	r.cache.Delete(ctx, Keys(t)...)
	return t, nil
}

func (r *CachedRegistry) UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) (*Tenant, error) {
	old, _ := r.Registry.FindByID(ctx, id)
	t, err := r.Registry.UpdateFields(ctx, id, patch)
	if old != nil {
		r.cache.Delete(ctx, Keys(old)...)
	}
	if err != nil {
		return nil, err
	}
	r.cache.Delete(ctx, Keys(t)...)
	return t, nil
}

func (r *CachedRegistry) SoftDelete(ctx context.Context, id uuid.UUID) error {
	old, _ := r.Registry.FindByID(ctx, id)
	err := r.Registry.SoftDelete(ctx, id)
	if old != nil {
		r.cache.Delete(ctx, Keys(old)...)
	}
	return err
}

// Invalidate drops every cached entry of t.
func (r *CachedRegistry) Invalidate(ctx context.Context, t *Tenant) {
	r.cache.Delete(ctx, Keys(t)...)
}
