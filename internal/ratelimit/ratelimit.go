// Package ratelimit admits or rejects requests per client key using a sliding
// time window. The shared Redis store coordinates across gateway instances;
// an in-process store serves as best-effort fallback when Redis is down.
package ratelimit

import (
	"context"
	"time"
)

// UnknownClientKey buckets requests whose source address cannot be derived.
const UnknownClientKey = "unknown"

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Limiter is what the request pipeline consumes.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Store is a sliding-window counter backend. Implementations must make the
// trim/count/insert sequence atomic per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// StoreLimiter binds a Store to a fixed ceiling and window.
type StoreLimiter struct {
	store  Store
	limit  int
	window time.Duration
}

// NewStoreLimiter wraps store with the configured ceiling and window.
func NewStoreLimiter(store Store, limit int, window time.Duration) *StoreLimiter {
	return &StoreLimiter{store: store, limit: limit, window: window}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.store.Allow(ctx, key, l.limit, l.window)
}
