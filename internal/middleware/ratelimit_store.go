package middleware

import (
	"context"
	"sync"
	"time"
)

// RateStore counts requests per key in fixed windows.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore keeps fixed-window counters in process. Expired windows restart on the next
// Increment for the same key; Prune drops the rest and is run by the maintenance scheduler.
type MemoryRateStore struct {
	mu       sync.Mutex
	counters map[string]rateWindow
	clock    func() time.Time
}

type rateWindow struct {
	count int
	ends  time.Time
}

// NewMemoryRateStore returns an empty store.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{
		counters: make(map[string]rateWindow),
		clock:    time.Now,
	}
}

func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.counters[key]
	if !ok || !now.Before(w.ends) {
		w = rateWindow{ends: now.Add(window)}
	}
	w.count++
	s.counters[key] = w

	return w.count, w.ends.Sub(now), nil
}

// Prune removes counters whose window has ended and reports how many were dropped.
func (s *MemoryRateStore) Prune() int {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for key, w := range s.counters {
		if !now.Before(w.ends) {
			delete(s.counters, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of tracked keys.
func (s *MemoryRateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
