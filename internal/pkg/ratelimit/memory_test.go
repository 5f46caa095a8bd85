package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestMemoryAllow(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	lim := NewMemory(clk, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	t.Run("WithinBudget", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := lim.Allow(ctx, "alice"); err != nil {
				t.Fatalf("call %d rejected: %v", i+1, err)
			}
		}
	})

	t.Run("OverBudget", func(t *testing.T) {
		retry, err := lim.Allow(ctx, "alice")
		if !errors.Is(err, ErrLimited) {
			t.Fatalf("expected ErrLimited, got %v", err)
		}
		if retry <= 0 || retry > time.Minute {
			t.Fatalf("unexpected retry-after %v", retry)
		}
	})

	t.Run("SubjectIsolation", func(t *testing.T) {
		if _, err := lim.Allow(ctx, "bob"); err != nil {
			t.Fatalf("unrelated subject limited: %v", err)
		}
	})

	t.Run("WindowExpiry", func(t *testing.T) {
		clk.Advance(61 * time.Second)
		if _, err := lim.Allow(ctx, "alice"); err != nil {
			t.Fatalf("expired window still limiting: %v", err)
		}
	})
}

func TestMemoryConcurrent(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	lim := NewMemory(clk, Config{Limit: 50, Window: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	limited := 0

	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lim.Allow(ctx, "alice"); errors.Is(err, ErrLimited) {
				mu.Lock()
				limited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if limited != 30 {
		t.Fatalf("expected exactly 30 limited calls, got %d", limited)
	}
}

func TestMemorySweep(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	lim := NewMemory(clk, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	_, _ = lim.Allow(ctx, "alice")
	_, _ = lim.Allow(ctx, "bob")
	clk.Advance(2 * time.Minute)
	_, _ = lim.Allow(ctx, "carol")

	if evicted := lim.Sweep(); evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", evicted)
	}
}
