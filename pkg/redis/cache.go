package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a string key-value cache with per-key expiration.
// A missing key reads as an empty string without error.
type Cache struct {
	db     redis.UniversalClient
	prefix string
}

// NewCache wraps a Redis client. Every key is stored under prefix.
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	if client == nil {
		panic("redis: client is required")
	}
	return &Cache{db: client, prefix: prefix}
}

// Get returns the cached value or "" when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	val, err := c.db.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Join(ErrCacheOperation, err)
	}
	return val, nil
}

// Set stores value for ttl. Zero ttl keeps the key until deleted.
// Empty keys and values are ignored.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" || value == "" {
		return nil
	}
	if err := c.db.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return errors.Join(ErrCacheOperation, err)
	}
	return nil
}

// Delete removes key. Empty keys are ignored.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := c.db.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Join(ErrCacheOperation, err)
	}
	return nil
}
