// Package redis connects to Redis and exposes a small string cache.
//
// Connect retries the initial ping according to Config, Healthcheck plugs the
// client into readiness checks and Cache stores short-lived lookups such as the
// billing portal configuration ID.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	cache := redis.NewCache(client, cfg.KeyPrefix)
//	_ = cache.Set(ctx, "key", "value", time.Hour)
//
// Configuration is read from REDIS_* environment variables via
// github.com/caarlos0/env. An empty REDIS_URL means Redis is not used.
package redis
