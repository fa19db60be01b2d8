package consol

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/cache"
)

const defaultCacheTTL = 15 * time.Minute

// RedisCache keeps consolidation runs in Redis as JSON.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache builds the run cache. ttl <= 0 selects the default.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (Run, error) {
	var run Run
	err := cache.GetJSON(ctx, c.client, key, &run)
	if errors.Is(err, cache.ErrMiss) {
		return Run{}, ErrCacheMiss
	}
	return run, err
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, run Run) error {
	return cache.SetJSON(ctx, c.client, key, run, c.ttl)
}
