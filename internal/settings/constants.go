package settings

// Setting keys and defaults.
const (
	// SetupCompletedKey records whether the setup wizard finished.
	SetupCompletedKey = "setup_completed"
	// AppNameKey is the display name of the dashboard.
	AppNameKey = "app_name"
	// AppVersionKey is the reported application version.
	AppVersionKey = "app_version"
	// DefaultAppName is the fallback application name.
	DefaultAppName = "Strepsil"
	// DefaultAppVersion is the fallback application version.
	DefaultAppVersion = "1.0.0"
	// RateLimitKey caps chat calls per provider per window (0 means unlimited).
	RateLimitKey = "RATE_LIMIT"
	// RateLimitWindowKey sets the counting window in seconds.
	RateLimitWindowKey = "RATE_LIMIT_WINDOW"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultRateLimit is the fallback rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitWindowSeconds is the fallback counting window.
	DefaultRateLimitWindowSeconds = 1
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "strepsil:rl"
)
