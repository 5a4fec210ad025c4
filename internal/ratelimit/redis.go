package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounterScript increments a window counter and arms its expiry on first use.
var windowCounterScript = redis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return used
`)

// RedisLimiter shares window counters between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter writing keys under prefix.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.Trim(strings.TrimSpace(prefix), ":")}
}

// Allow consumes one call from key's current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if l == nil || l.client == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if window <= 0 {
		window = DefaultWindow
	}
	idx, ends := windowIndex(now, window)
	// Counters outlive their window by one extra window so late calls still see them.
	ttl := 2 * window.Milliseconds()
	if ttl <= 0 {
		ttl = 2 * DefaultWindow.Milliseconds()
	}
	used, errRun := windowCounterScript.Run(ctx, l.client, []string{l.counterKey(key, idx)}, ttl).Int64()
	if errRun != nil {
		return Result{}, fmt.Errorf("rate limit redis: %w", errRun)
	}
	if used > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: ends}, nil
	}
	return Result{Allowed: true, Remaining: remaining(limit, used), Reset: ends}, nil
}

// Close closes the underlying client.
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *RedisLimiter) counterKey(key string, idx int64) string {
	parts := make([]string, 0, 3)
	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}
	parts = append(parts, key, strconv.FormatInt(idx, 10))
	return strings.Join(parts, ":")
}
