package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	expires time.Time
}

type clocker interface {
	Now() time.Time
}

// Memory is a process-local fixed-window limiter. Each key's
// read-check-increment runs under one lock so concurrent requests from the
// same subject cannot lose increments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   clocker
	cfg     Config
}

// NewMemory builds an in-memory limiter.
func NewMemory(clk clocker, cfg Config) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		clock:   clk,
		cfg:     cfg.withDefaults(),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, subject string) (time.Duration, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[subject]
	if !ok || e.expires.Before(now) {
		m.entries[subject] = &memoryEntry{count: 1, expires: now.Add(m.cfg.Window)}
		return 0, nil
	}

	if e.count >= m.cfg.Limit {
		return e.expires.Sub(now), ErrLimited
	}

	e.count++
	return 0, nil
}

// Sweep drops expired windows; called periodically to bound memory.
func (m *Memory) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, e := range m.entries {
		if e.expires.Before(now) {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted
}
