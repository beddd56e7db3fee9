// Package ratelimit guards /playback/* against abusive polling with a
// per-stream (tenantId:cameraId) fixed-window counter backed by Redis. It never fails closed:
// if Redis is unreachable the limiter degrades to allow-all so a backing
// store outage never takes playback down.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds
}

// Limiter enforces a requests-per-window budget per key (typically
// tenantId:cameraId). Degrades to allow-all whenever Redis returns an error.
type Limiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	script *redis.Script
}

func NewLimiter(client *redis.Client, rate int, window time.Duration) *Limiter {
	if rate <= 0 {
		rate = 50
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		client: client,
		rate:   rate,
		window: window,
		script: redis.NewScript(`
			local current = redis.call("INCR", KEYS[1])
			if tonumber(current) == 1 then
				redis.call("PEXPIRE", KEYS[1], ARGV[1])
			end
			return current
		`),
	}
}

// Ping checks Redis reachability at startup; callers log a warning and keep
// running (allow-all) on failure rather than treating it as fatal.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Allow checks whether key is within budget for the current window.
// On any Redis error the call degrades to allowed=true.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	count, err := l.script.Run(ctx, l.client, []string{"rl:" + key}, l.window.Milliseconds()).Int()
	if err != nil {
		log.Printf("ratelimit: redis unavailable, allowing request: %v", err)
		return Decision{Allowed: true, Limit: l.rate, Remaining: l.rate}
	}

	remaining := l.rate - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    count <= l.rate,
		Limit:      l.rate,
		Remaining:  remaining,
		RetryAfter: int(l.window.Seconds()),
	}
}
