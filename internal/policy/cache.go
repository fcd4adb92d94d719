package policy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	redis "github.com/redis/go-redis/v9"

	"globalroute/internal/classifier"
)

// Cache stores classifier results by CacheKey. Errors are advisory: the
// resolver logs them and carries on as on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (classifier.Result, bool, error)
	Set(ctx context.Context, key string, res classifier.Result) error
}

// DefaultCacheTTL applies when a cache is built with a zero TTL.
const DefaultCacheTTL = 24 * time.Hour

// MemoryCache is an in-process LRU with expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, classifier.Result]
}

// NewMemoryCache holds up to size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{lru: expirable.NewLRU[string, classifier.Result](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (classifier.Result, bool, error) {
	res, ok := c.lru.Get(key)
	return res, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res classifier.Result) error {
	c.lru.Add(key, res)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int { return c.lru.Len() }

// RedisCache shares classifier results between replicas.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close releases the connection pool.
func (c *RedisCache) Close() error { return c.rdb.Close() }

func (c *RedisCache) Get(ctx context.Context, key string) (classifier.Result, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return classifier.Result{}, false, nil
	}
	if err != nil {
		return classifier.Result{}, false, err
	}
	var res classifier.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return classifier.Result{}, false, err
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res classifier.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}
