// Package ratelimit throttles message sends per user, backed by Redis when
// available and by an in-process token bucket otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerWindow is the maximum number of requests allowed in the window.
	RequestsPerWindow int
	// WindowSize is the duration of the window.
	WindowSize time.Duration
}

// DefaultSendConfig allows 20 messages per 10 seconds per user.
func DefaultSendConfig() Config {
	return Config{
		RequestsPerWindow: 20,
		WindowSize:        10 * time.Second,
	}
}

// ParseConfig parses "N" or "N/window" (for example "20/10s") into a Config.
// A bare N keeps the default window.
func ParseConfig(s string) (Config, error) {
	cfg := DefaultSendConfig()
	s = strings.TrimSpace(s)
	if s == "" {
		return cfg, nil
	}

	count, window, hasWindow := strings.Cut(s, "/")
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Config{}, fmt.Errorf("invalid rate limit %q: request count must be a positive integer", s)
	}
	cfg.RequestsPerWindow = n

	if hasWindow {
		d, err := time.ParseDuration(strings.TrimSpace(window))
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid rate limit %q: window must be a positive duration", s)
		}
		cfg.WindowSize = d
	}
	return cfg, nil
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool
	// Remaining is the number of requests remaining in the current window.
	Remaining int
	// ResetAt is when the window resets.
	ResetAt time.Time
	// RetryAfter is the duration to wait before retrying (only set when not allowed).
	RetryAfter time.Duration
}

// Limiter is implemented by every rate limiting backend.
type Limiter interface {
	// Allow checks if a request identified by key is allowed under the rate limit.
	Allow(ctx context.Context, key string) (*Result, error)
	// Backend names the implementation for health reporting.
	Backend() string
	// Close releases any resources held by the limiter.
	Close() error
}
