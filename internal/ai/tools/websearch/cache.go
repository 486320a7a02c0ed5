package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores search results by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]Result, bool, error)
	Set(ctx context.Context, key string, results []Result, ttl time.Duration) error
}

type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Result, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, results []Result, ttl time.Duration) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// MemoryCache is a bounded per-process cache. Its TTL is fixed at
// construction.
type MemoryCache struct {
	lru *expirable.LRU[string, []Result]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []Result](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Result, bool, error) {
	results, ok := c.lru.Get(key)
	return results, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, results []Result, _ time.Duration) error {
	c.lru.Add(key, results)
	return nil
}
