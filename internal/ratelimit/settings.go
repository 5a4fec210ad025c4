package ratelimit

import (
	"math"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/router-for-me/strepsil/internal/settings"
)

// SettingsConfig is the rate limit configuration read from the settings table.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DefaultSettingsConfig is used before any rate limit setting is stored.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Limit:       internalsettings.DefaultRateLimit,
		Window:      Window(internalsettings.DefaultRateLimitWindowSeconds),
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}
}

// LoadSettingsConfig reads rate limit settings from snap. Malformed values keep their defaults.
func LoadSettingsConfig(snap *internalsettings.Snapshot) SettingsConfig {
	cfg := DefaultSettingsConfig()
	value := func(key string) (string, bool) {
		raw, ok := snap.Value(key)
		return strings.TrimSpace(raw), ok
	}

	if raw, ok := value(internalsettings.RateLimitKey); ok {
		if n, valid := parseNonNegativeInt(raw); valid {
			cfg.Limit = n
		}
	}
	if raw, ok := value(internalsettings.RateLimitWindowKey); ok {
		if n, valid := parseNonNegativeInt(raw); valid && n > 0 {
			cfg.Window = Window(n)
		}
	}
	if raw, ok := value(internalsettings.RateLimitRedisEnabledKey); ok {
		if enabled, valid := parseBool(raw); valid {
			cfg.RedisEnabled = enabled
		}
	}
	if raw, ok := value(internalsettings.RateLimitRedisDBKey); ok {
		if n, valid := parseNonNegativeInt(raw); valid {
			cfg.RedisDB = n
		}
	}
	cfg.RedisAddr, _ = value(internalsettings.RateLimitRedisAddrKey)
	cfg.RedisPassword, _ = value(internalsettings.RateLimitRedisPasswordKey)
	if prefix, _ := value(internalsettings.RateLimitRedisPrefixKey); prefix != "" {
		cfg.RedisPrefix = prefix
	}
	return cfg
}

// SnapshotProvider reads settings from snap on every call, so setting changes apply immediately.
func SnapshotProvider(snap *internalsettings.Snapshot) SettingsProvider {
	return func() SettingsConfig { return LoadSettingsConfig(snap) }
}

// WithRedisDefaults fills the Redis endpoint from static config when the settings leave it empty.
// Redis is then enabled unless RATE_LIMIT_REDIS_ENABLED is stored explicitly.
func WithRedisDefaults(p SettingsProvider, snap *internalsettings.Snapshot, addr, password string, db int) SettingsProvider {
	addr = strings.TrimSpace(addr)
	if p == nil {
		p = DefaultSettingsConfig
	}
	if addr == "" {
		return p
	}
	return func() SettingsConfig {
		cfg := p()
		if cfg.RedisAddr != "" {
			return cfg
		}
		cfg.RedisAddr = addr
		cfg.RedisPassword = strings.TrimSpace(password)
		cfg.RedisDB = db
		if _, explicit := snap.Value(internalsettings.RateLimitRedisEnabledKey); !explicit {
			cfg.RedisEnabled = true
		}
		return cfg
	}
}

// parseBool accepts the usual toggle spellings, optionally JSON-quoted.
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.Trim(raw, `"`)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// parseNonNegativeInt accepts integers and integral floats such as "5.0".
func parseNonNegativeInt(raw string) (int, bool) {
	trimmed := strings.Trim(raw, `"`)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
