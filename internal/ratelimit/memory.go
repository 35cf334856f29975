package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-memory sliding window. It does not
// coordinate across instances; the gateway uses it as the fallback when the
// shared store is unreachable, or standalone when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// slidingWindow tracks admitted-request timestamps for one client key.
type slidingWindow struct {
	timestamps []time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*slidingWindow)}
}

// Allow trims entries older than the window, counts the remainder, and admits
// the request iff the count is below limit. The whole sequence runs under the
// store lock so concurrent checks for the same key cannot double-admit.
func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	sw.trim(now.Add(-window))

	if len(sw.timestamps) >= limit {
		return &Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    sw.timestamps[0].Add(window),
			RetryAfter: int(window.Seconds()),
		}, nil
	}

	sw.timestamps = append(sw.timestamps, now)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.timestamps),
		ResetAt:   sw.timestamps[0].Add(window),
	}, nil
}

// Reset clears the window for a key.
func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}

// trim drops timestamps at or before cutoff. Caller holds the store lock.
func (sw *slidingWindow) trim(cutoff time.Time) {
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
