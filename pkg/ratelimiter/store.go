package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. Implementations must refill and consume atomically.
type Store interface {
	// ConsumeTokens takes tokens from the bucket at key and returns what is left.
	// A negative remainder means the bucket did not hold enough tokens.
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
