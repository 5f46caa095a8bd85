package bruteforce

import (
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

func newTestGuard(cfg Config) (*Guard, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewGuard(NewMemoryStore(), clk, cfg), clk
}

func TestGuardThreshold(t *testing.T) {
	g, _ := newTestGuard(Config{})

	// Arrange: 4 failures stay under the default threshold of 5.
	for i := 0; i < 4; i++ {
		g.RecordFailure("10.0.0.1")
	}

	if d := g.Allow("10.0.0.1"); !d.Allowed {
		t.Fatalf("origin blocked before threshold")
	}

	// Act: the 5th failure trips the lockout.
	g.RecordFailure("10.0.0.1")

	// Assert
	d := g.Allow("10.0.0.1")
	if d.Allowed {
		t.Fatalf("origin not blocked at threshold")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry-after %v", d.RetryAfter)
	}
}

func TestGuardOriginIsolation(t *testing.T) {
	g, _ := newTestGuard(Config{})

	for i := 0; i < 5; i++ {
		g.RecordFailure("10.0.0.1")
	}

	if d := g.Allow("10.0.0.2"); !d.Allowed {
		t.Fatalf("unrelated origin blocked")
	}
}

func TestGuardLockoutExpiry(t *testing.T) {
	g, clk := newTestGuard(Config{LockoutDuration: 15 * time.Minute})

	for i := 0; i < 5; i++ {
		g.RecordFailure("10.0.0.1")
	}
	if d := g.Allow("10.0.0.1"); d.Allowed {
		t.Fatalf("expected lockout")
	}

	clk.Advance(14 * time.Minute)
	if d := g.Allow("10.0.0.1"); d.Allowed {
		t.Fatalf("lockout released early")
	}

	clk.Advance(2 * time.Minute)
	if d := g.Allow("10.0.0.1"); !d.Allowed {
		t.Fatalf("lockout not released after expiry")
	}
}

func TestGuardWindowRestartsCounter(t *testing.T) {
	g, clk := newTestGuard(Config{Window: time.Hour})

	for i := 0; i < 4; i++ {
		g.RecordFailure("10.0.0.1")
	}

	// The window is measured from the first failure; once it elapses the
	// next failure starts a fresh counter instead of tripping the lockout.
	clk.Advance(61 * time.Minute)
	g.RecordFailure("10.0.0.1")

	if d := g.Allow("10.0.0.1"); !d.Allowed {
		t.Fatalf("stale window counted toward lockout")
	}
}

func TestGuardResetOnSuccess(t *testing.T) {
	g, _ := newTestGuard(Config{})

	for i := 0; i < 4; i++ {
		g.RecordFailure("10.0.0.1")
	}
	g.Reset("10.0.0.1")

	// After a reset the origin gets the full budget again.
	for i := 0; i < 4; i++ {
		g.RecordFailure("10.0.0.1")
	}
	if d := g.Allow("10.0.0.1"); !d.Allowed {
		t.Fatalf("reset did not clear the counter")
	}
}

func TestGuardConcurrentFailures(t *testing.T) {
	g, _ := newTestGuard(Config{MaxAttempts: 100})

	var wg sync.WaitGroup
	for i := 0; i < 99; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordFailure("10.0.0.1")
		}()
	}
	wg.Wait()

	if d := g.Allow("10.0.0.1"); !d.Allowed {
		t.Fatalf("blocked below threshold")
	}

	g.RecordFailure("10.0.0.1")
	if d := g.Allow("10.0.0.1"); d.Allowed {
		t.Fatalf("lost increments under concurrency")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGuard(store, clk, Config{Window: time.Hour})

	g.RecordFailure("10.0.0.1")
	clk.Advance(3 * time.Hour)
	g.RecordFailure("10.0.0.2")

	evicted := store.Sweep(clk.Now().Add(-2 * time.Hour))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := store.Get("10.0.0.1"); ok {
		t.Fatalf("idle counter survived sweep")
	}
	if _, ok := store.Get("10.0.0.2"); !ok {
		t.Fatalf("active counter evicted")
	}
}
