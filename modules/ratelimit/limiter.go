package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces send limits in Redis.
const KeyPrefix = "roomchat:ratelimit:send:"

// RedisOptions selects the Redis backend. An empty Addr selects the in-process limiter.
type RedisOptions struct {
	Addr     string
	Password string
}

// New returns a Redis sliding window limiter when Redis is configured and
// reachable, and a TokenBucketLimiter otherwise.
func New(ctx context.Context, config Config, opts RedisOptions, logger types.Logger) Limiter {
	if opts.Addr == "" {
		logger.Info("Using in-process rate limiter", "limit", config.RequestsPerWindow, "window", config.WindowSize.String())
		return NewTokenBucketLimiter(config)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		logger.Warn("Redis unreachable, falling back to in-process rate limiter",
			"addr", opts.Addr, "error", err)
		return NewTokenBucketLimiter(config)
	}

	logger.Info("Using Redis rate limiter", "addr", opts.Addr,
		"limit", config.RequestsPerWindow, "window", config.WindowSize.String())
	l := NewSlidingWindowLimiter(client, config, KeyPrefix)
	l.owned = true
	return l
}

// Describe renders a config for logs and health details.
func Describe(config Config) string {
	return fmt.Sprintf("%d per %s", config.RequestsPerWindow, config.WindowSize)
}
