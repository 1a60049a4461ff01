package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/pkg/redis"
)

func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCache_EmptyKeysSkipRedis(t *testing.T) {
	t.Parallel()
	client := unreachableClient()
	t.Cleanup(func() { _ = client.Close() })
	cache := redis.NewCache(client, "test:")
	ctx := context.Background()

	val, err := cache.Get(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, val)
	assert.NoError(t, cache.Set(ctx, "", "v", time.Minute))
	assert.NoError(t, cache.Set(ctx, "k", "", time.Minute))
	assert.NoError(t, cache.Delete(ctx, ""))
}

func TestCache_UnreachableServer(t *testing.T) {
	t.Parallel()
	client := unreachableClient()
	t.Cleanup(func() { _ = client.Close() })
	cache := redis.NewCache(client, "test:")
	ctx := context.Background()

	_, err := cache.Get(ctx, "key")
	assert.ErrorIs(t, err, redis.ErrCacheOperation)
	assert.ErrorIs(t, cache.Set(ctx, "key", "value", time.Minute), redis.ErrCacheOperation)
}

func TestNewCache_NilClientPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { redis.NewCache(nil, "") })
}

func TestConnect_EmptyURL(t *testing.T) {
	t.Parallel()
	_, err := redis.Connect(context.Background(), redis.Config{})
	assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
}

func TestConnect_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "not-a-url",
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}

func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set")
	}

	ctx := context.Background()
	client, err := redis.Connect(ctx, redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := redis.NewCache(client, "test:"+uuid.NewString()+":")

	val, err := cache.Get(ctx, "portal")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, cache.Set(ctx, "portal", "bpc_123", time.Minute))
	val, err = cache.Get(ctx, "portal")
	require.NoError(t, err)
	assert.Equal(t, "bpc_123", val)

	require.NoError(t, cache.Delete(ctx, "portal"))
	val, err = cache.Get(ctx, "portal")
	require.NoError(t, err)
	assert.Empty(t, val)

	assert.NoError(t, redis.Healthcheck(client)(ctx))
}
