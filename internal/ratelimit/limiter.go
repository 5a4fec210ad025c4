// Package ratelimit throttles chat calls per provider with fixed windows.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the counting window used when none is configured.
const DefaultWindow = time.Second

// Result is the outcome of one limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts calls for a key inside the window containing now.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Decision is the limit that applies to one provider.
type Decision struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the decision limits anything.
func (d Decision) Enabled() bool {
	return d.Limit > 0 && d.Key != ""
}

// windowIndex returns the number of the window containing now and the instant it ends.
func windowIndex(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = DefaultWindow
	}
	idx := now.UnixNano() / int64(window)
	return idx, time.Unix(0, (idx+1)*int64(window)).UTC()
}

func remaining(limit int, used int64) int {
	if left := int64(limit) - used; left > 0 {
		return int(left)
	}
	return 0
}
