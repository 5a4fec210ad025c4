package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
)

const redisPingTimeout = 2 * time.Second

// SettingsProvider returns the current rate limit settings.
type SettingsProvider func() SettingsConfig

// RedisClientFactory opens a Redis client.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies the Redis endpoint a limiter was opened for.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

// Manager routes limit checks to Redis when configured and healthy, otherwise to memory.
type Manager struct {
	settings  SettingsProvider
	now       func() time.Time
	memory    *MemoryLimiter
	dial      RedisClientFactory
	redisDown breaker

	mu     sync.Mutex
	redis  *RedisLimiter
	target redisTarget
}

// NewManager constructs a Manager. Nil arguments fall back to defaults.
func NewManager(settings SettingsProvider, now func() time.Time, dial RedisClientFactory) *Manager {
	if settings == nil {
		settings = DefaultSettingsConfig
	}
	if now == nil {
		now = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{
		settings:  settings,
		now:       now,
		memory:    NewMemoryLimiter(),
		dial:      dial,
		redisDown: breaker{cooldown: redisCooldown},
	}
}

// AllowProvider consumes one chat call for provider.
func (m *Manager) AllowProvider(ctx context.Context, provider string) (Decision, Result, error) {
	if m == nil {
		return Decision{}, Result{Allowed: true}, nil
	}
	cfg := m.settings()
	decision := ResolveLimit(cfg, provider)
	if !decision.Enabled() {
		return decision, Result{Allowed: true}, nil
	}
	now := m.now()
	if cfg.RedisEnabled && !m.redisDown.open(now) {
		res, errRedis := m.allowRedis(ctx, cfg, decision, now)
		if errRedis == nil {
			return decision, res, nil
		}
		m.redisDown.trip(errRedis, now)
	}
	res, err := m.memory.Allow(ctx, decision.Key, decision.Limit, decision.Window, now)
	return decision, res, err
}

// Close releases the Redis client, if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.redis.Close()
	m.redis = nil
	m.target = redisTarget{}
	return err
}

func (m *Manager) allowRedis(ctx context.Context, cfg SettingsConfig, d Decision, now time.Time) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	limiter, err := m.redisFor(ctx, cfg)
	if err != nil {
		return Result{}, err
	}
	return limiter.Allow(ctx, d.Key, d.Limit, d.Window, now)
}

// redisFor returns a limiter for cfg's endpoint, reopening it when the settings changed.
func (m *Manager) redisFor(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	target := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: cfg.RedisPassword,
		db:       max(cfg.RedisDB, 0),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if target.addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}
	if target.prefix == "" {
		target.prefix = internalsettings.DefaultRateLimitRedisPrefix
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	_ = m.redis.Close()
	m.redis = nil

	client := m.dial(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis, nil
}
