package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process sliding-window store. Suitable for
// development, testing and single-replica deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	// now is overridable for tests.
	now func() time.Time
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, window time.Duration, max int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.windows[key][:0]
	for _, t := range s.windows[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.windows[key] = kept

	decision := Decision{
		Limit:     max,
		Remaining: max - len(kept),
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if len(kept) > max {
		// The oldest surviving event leaving the window frees one slot.
		decision.RetryAfter = kept[0].Add(window).Sub(now)
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = make(map[string][]time.Time)
	return nil
}

// Size returns the number of tracked keys (for testing).
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
