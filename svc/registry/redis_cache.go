package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

// RedisCache is a tenant.Cache shared by every process of a deployment.
// Redis errors degrade to cache misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

var _ tenant.Cache = (*RedisCache)(nil)

// NewRedisCache stores tenants as JSON under prefix+"tenant:"+key for ttl.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, prefix: prefix + "tenant:", ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*tenant.Tenant, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "tenant cache read failed", slog.String("key", key), logger.Error(err))
		}
		return nil, false
	}
	var t tenant.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		c.log.WarnContext(ctx, "tenant cache entry is corrupt", slog.String("key", key), logger.Error(err))
		c.Delete(ctx, key)
		return nil, false
	}
	return &t, true
}

func (c *RedisCache) Set(ctx context.Context, key string, t *tenant.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "tenant cache write failed", slog.String("key", key), logger.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	// Invalidation must not be skipped because the request was cancelled.
	if err := c.client.Del(context.WithoutCancel(ctx), full...).Err(); err != nil {
		c.log.ErrorContext(ctx, "tenant cache invalidation failed", slog.Any("keys", keys), logger.Error(err))
	}
}
