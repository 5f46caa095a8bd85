package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited indicates the subject exhausted its budget for the window.
var ErrLimited = errors.New("ratelimit: too many requests")

// Limiter guards call rates per subject. It is coarser than the brute-force
// guard on login: one budget per authenticated subject across all endpoints.
type Limiter interface {
	// Allow consumes one call from the subject's budget. It returns
	// ErrLimited with a non-zero retry-after when the budget is exhausted;
	// internal store failures are returned as-is so callers can decide
	// whether to fail open.
	Allow(ctx context.Context, subject string) (retryAfter time.Duration, err error)
}

// Config tunes a limiter. Zero values default to 30 calls per minute.
type Config struct {
	// Limit is the number of calls per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 30
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}
