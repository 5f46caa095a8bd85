package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter backed by a shared Redis instance, so the
// budget holds across multiple application instances. INCR plus a one-time
// EXPIRE keeps the per-key cycle atomic on the Redis side.
type Redis struct {
	client *redis.Client
	prefix string
	cfg    Config
}

// NewRedis builds a Redis-backed limiter.
func NewRedis(client *redis.Client, cfg Config) *Redis {
	return &Redis{
		client: client,
		prefix: "ratelimit:",
		cfg:    cfg.withDefaults(),
	}
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, subject string) (time.Duration, error) {
	key := r.prefix + subject

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.cfg.Window).Err(); err != nil {
			return 0, err
		}
	}

	if count > int64(r.cfg.Limit) {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = r.cfg.Window
		}
		return ttl, ErrLimited
	}

	return 0, nil
}
