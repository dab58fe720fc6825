package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// failScript counts one failure and starts the window on the first one.
var failScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter throttles clients that keep presenting bad API keys. Only
// failures count; a valid key is never slowed down.
type RateLimiter struct {
	rdb      redis.Cmdable
	failures int
	window   time.Duration
}

// NewRateLimiter blocks an IP for the rest of window once it has failed
// failures times within it.
func NewRateLimiter(rdb redis.Cmdable, failures int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, failures: failures, window: window}
}

func rateLimitKey(ip string) string {
	return "callcenter:auth:failures:" + ip
}

// Blocked returns how long ip must wait before trying again, or zero.
func (rl *RateLimiter) Blocked(ctx context.Context, ip string) (time.Duration, error) {
	key := rateLimitKey(ip)
	n, err := rl.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading failure count: %w", err)
	}
	if n < rl.failures {
		return 0, nil
	}

	ttl, err := rl.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading failure window: %w", err)
	}
	if ttl <= 0 {
		ttl = rl.window
	}
	return ttl, nil
}

// Fail records one failed attempt from ip.
func (rl *RateLimiter) Fail(ctx context.Context, ip string) error {
	if err := failScript.Run(ctx, rl.rdb, []string{rateLimitKey(ip)}, rl.window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}
	return nil
}
