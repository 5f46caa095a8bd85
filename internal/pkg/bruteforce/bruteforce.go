package bruteforce

import (
	"context"
	"log/slog"
	"time"
)

// Clocker abstracts time so the guard can be driven by a fake clock in tests.
type Clocker interface {
	Now() time.Time
}

// Counter tracks failed attempts for one origin.
type Counter struct {
	// Count is the number of failures inside the current window.
	Count int
	// FirstAttempt marks the start of the sliding window.
	FirstAttempt time.Time
	// LastAttempt is used by the sweeper to evict idle counters.
	LastAttempt time.Time
	// BlockedUntil is zero until the threshold is reached.
	BlockedUntil time.Time
}

// Store owns the per-origin counters. Update runs fn under the key's lock so
// the read-check-increment cycle is atomic for concurrent attempts against
// the same origin. A nil *Counter passed to fn means no counter exists yet;
// fn returning nil deletes the entry.
type Store interface {
	// Get returns the counter for key, or false when absent.
	Get(key string) (Counter, bool)
	// Update atomically replaces the counter for key.
	Update(key string, fn func(c *Counter) *Counter)
	// Delete drops the counter for key.
	Delete(key string)
	// Sweep removes entries whose LastAttempt is older than cutoff.
	Sweep(cutoff time.Time) int
}

// Decision is the outcome of an Allow check.
type Decision struct {
	// Allowed is false while the origin is locked out.
	Allowed bool
	// RetryAfter is the remaining lockout, zero when allowed.
	RetryAfter time.Duration
}

// Config tunes the guard. Zero values fall back to the defaults used by the
// login flow: 5 failures inside a 1 hour window lock the origin for 15
// minutes.
type Config struct {
	// MaxAttempts is the failure threshold per window.
	MaxAttempts int
	// Window is the sliding window measured from the first failure.
	Window time.Duration
	// LockoutDuration is how long an origin stays blocked.
	LockoutDuration time.Duration
	// SweepInterval controls how often idle counters are evicted.
	SweepInterval time.Duration
}

// Guard is a per-origin sliding-window failure counter with timed lockout.
// It is defense in depth for the login flow, not a standalone security
// boundary.
type Guard struct {
	store    Store
	clock    Clocker
	max      int
	window   time.Duration
	lockout  time.Duration
	interval time.Duration
}

// NewGuard builds a Guard over the given store.
func NewGuard(store Store, clk Clocker, cfg Config) *Guard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Minute
	}

	return &Guard{
		store:    store,
		clock:    clk,
		max:      cfg.MaxAttempts,
		window:   cfg.Window,
		lockout:  cfg.LockoutDuration,
		interval: cfg.SweepInterval,
	}
}

// Allow reports whether the origin may attempt authentication. A check
// against a blocked origin is never itself recorded as a failure. An expired
// lockout clears the counter.
func (g *Guard) Allow(origin string) Decision {
	c, ok := g.store.Get(origin)
	if !ok || c.BlockedUntil.IsZero() {
		return Decision{Allowed: true}
	}

	now := g.clock.Now()
	if c.BlockedUntil.After(now) {
		return Decision{Allowed: false, RetryAfter: c.BlockedUntil.Sub(now)}
	}

	g.store.Delete(origin)
	return Decision{Allowed: true}
}

// RecordFailure registers one failed attempt for the origin. A fresh counter
// starts at 1 when none exists or when the window elapsed since the first
// failure; reaching the threshold sets the lockout deadline.
func (g *Guard) RecordFailure(origin string) {
	now := g.clock.Now()

	g.store.Update(origin, func(c *Counter) *Counter {
		if c == nil || now.Sub(c.FirstAttempt) > g.window {
			return &Counter{Count: 1, FirstAttempt: now, LastAttempt: now}
		}

		c.Count++
		c.LastAttempt = now

		if c.Count >= g.max {
			c.BlockedUntil = now.Add(g.lockout)
			slog.Warn("origin locked out after repeated failures",
				"origin", origin,
				"failures", c.Count,
				"lockout_minutes", int(g.lockout.Minutes()),
			)
		}

		return c
	})
}

// Reset drops the counter for the origin after a successful authentication.
func (g *Guard) Reset(origin string) {
	g.store.Delete(origin)
}

// Run sweeps counters idle for longer than twice the window until ctx is
// cancelled, bounding memory held by one-off origins.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := g.clock.Now().Add(-2 * g.window)
			if evicted := g.store.Sweep(cutoff); evicted > 0 {
				slog.Debug("swept idle failure counters", "evicted", evicted)
			}
		}
	}
}
