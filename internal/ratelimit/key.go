package ratelimit

import (
	"strings"
	"time"
)

// KeyForProvider builds the counter key for chat calls to provider.
func KeyForProvider(provider string) string {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		return ""
	}
	return "p:" + name
}

// ResolveLimit applies the settings to provider.
// A zero limit or an empty provider disables limiting.
func ResolveLimit(cfg SettingsConfig, provider string) Decision {
	key := KeyForProvider(provider)
	if cfg.Limit <= 0 || key == "" {
		return Decision{}
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return Decision{Key: key, Limit: cfg.Limit, Window: window}
}

// Window converts a whole number of seconds to a counting window.
func Window(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultWindow
	}
	return time.Duration(seconds) * time.Second
}
