package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucketState struct {
	tokens     int
	lastRefill time.Time
	expiresAt  time.Time
}

// MemoryStore keeps buckets in process memory. Expired buckets are dropped
// lazily while other keys are consumed.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time
	sweeps  int
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sweepEvery is the number of consumes between expired bucket sweeps.
const sweepEvery = 256

func (s *MemoryStore) ConsumeTokens(_ context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweeps++
	if s.sweeps >= sweepEvery {
		s.sweeps = 0
		for k, b := range s.buckets {
			if now.After(b.expiresAt) {
				delete(s.buckets, k)
			}
		}
	}

	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &bucketState{tokens: cfg.Capacity, lastRefill: now}
		s.buckets[key] = b
	}

	refill(&b.tokens, &b.lastRefill, now, cfg)
	if b.tokens >= tokens {
		b.tokens -= tokens
		b.expiresAt = now.Add(cfg.idleTTL())
		return b.tokens, b.lastRefill.Add(cfg.RefillInterval), nil
	}

	b.expiresAt = now.Add(cfg.idleTTL())
	return b.tokens - tokens, b.lastRefill.Add(cfg.RefillInterval), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// refill adds the tokens earned since lastRefill, capped at capacity.
func refill(tokens *int, lastRefill *time.Time, now time.Time, cfg Config) {
	intervals := int(now.Sub(*lastRefill) / cfg.RefillInterval)
	if intervals <= 0 {
		return
	}
	// Capped so large gaps cannot overflow.
	maxIntervals := cfg.Capacity/cfg.RefillRate + 1
	*tokens = min(*tokens+min(intervals, maxIntervals)*cfg.RefillRate, cfg.Capacity)
	*lastRefill = lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
}
