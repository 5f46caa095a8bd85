package bruteforce

import (
	"sync"
	"time"
)

// MemoryStore is the process-local Store used by default. Deployments with
// more than one instance should back the guard with a shared store instead;
// with this store each instance keeps its own counters.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*Counter)}
}

// Get returns the counter for key.
func (s *MemoryStore) Get(key string) (Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return Counter{}, false
	}
	return *c, true
}

// Update runs fn under the store lock so concurrent failures against the
// same origin never lose increments.
func (s *MemoryStore) Update(key string, fn func(c *Counter) *Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.counters[key])
	if next == nil {
		delete(s.counters, key)
		return
	}
	s.counters[key] = next
}

// Delete drops the counter for key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
}

// Sweep evicts counters idle since before cutoff and returns how many were
// removed.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, c := range s.counters {
		if c.LastAttempt.Before(cutoff) {
			delete(s.counters, key)
			evicted++
		}
	}
	return evicted
}
