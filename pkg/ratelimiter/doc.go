// Package ratelimiter implements token bucket rate limiting.
//
// Buckets live in a Store: MemoryStore for a single instance, RedisStore when
// several instances share limits. Denied requests do not consume tokens.
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: time.Minute,
//	})
//	r.With(ratelimiter.Middleware(limiter, keyFunc, log)).Post("/checkout", h)
package ratelimiter
