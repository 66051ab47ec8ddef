package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxIdleBuckets bounds how many per-key buckets are kept before idle ones are swept.
const maxIdleBuckets = 10000

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter keeps one token bucket per key in process memory.
// Buckets hold RequestsPerWindow tokens and refill continuously over WindowSize.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	config  Config
	buckets map[string]*bucket
	now     func() time.Time
}

// NewTokenBucketLimiter creates an in-process limiter.
func NewTokenBucketLimiter(config Config) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *TokenBucketLimiter) refillRate() float64 {
	return float64(l.config.RequestsPerWindow) / l.config.WindowSize.Seconds()
}

// Allow takes a token from key's bucket if one is available.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	maxTokens := float64(l.config.RequestsPerWindow)
	rate := l.refillRate()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxIdleBuckets {
			l.sweepLocked(now)
		}
		b = &bucket{tokens: maxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * rate
		if b.tokens > maxTokens {
			b.tokens = maxTokens
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return &Result{
			Allowed:   true,
			Remaining: int(b.tokens),
			ResetAt:   now.Add(time.Duration((maxTokens - b.tokens) / rate * float64(time.Second))),
		}, nil
	}

	wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
	return &Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    now.Add(wait),
		RetryAfter: wait,
	}, nil
}

// sweepLocked drops buckets that have refilled completely.
func (l *TokenBucketLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.config.WindowSize {
			delete(l.buckets, key)
		}
	}
}

// Backend returns "memory".
func (l *TokenBucketLimiter) Backend() string {
	return "memory"
}

// Close is a no-op.
func (l *TokenBucketLimiter) Close() error {
	return nil
}
