package audit

import (
	"context"
	"sync"
	"time"
)

// Store is an append-only durable sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// MemoryStore keeps events in memory, bucketed by day like the durable
// stores. Used in tests and as a placeholder when no durable sink is
// configured.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]Event // day (YYYY-MM-DD, UTC) -> events
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := event.Timestamp.UTC().Format(time.DateOnly)
	s.events[day] = append(s.events[day], event)
	return nil
}

// Day returns the events recorded for a YYYY-MM-DD day bucket.
func (s *MemoryStore) Day(day string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events[day]))
	copy(out, s.events[day])
	return out
}

// All returns every stored event across buckets.
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, events := range s.events {
		out = append(out, events...)
	}
	return out
}
