package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the counter count above which expired windows are dropped.
const sweepThreshold = 1024

type counter struct {
	index int64
	used  int64
	ends  time.Time
}

// MemoryLimiter keeps per-process window counters.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemoryLimiter constructs an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*counter)}
}

// Allow consumes one call from key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	idx, ends := windowIndex(now, window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.counters) > sweepThreshold {
		l.sweep(now)
	}
	c, ok := l.counters[key]
	if !ok || c.index != idx {
		c = &counter{index: idx, ends: ends}
		l.counters[key] = c
	}
	if c.used >= int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: c.ends}, nil
	}
	c.used++
	return Result{Allowed: true, Remaining: remaining(limit, c.used), Reset: c.ends}, nil
}

// sweep drops counters whose window has ended. Callers hold l.mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for key, c := range l.counters {
		if !now.Before(c.ends) {
			delete(l.counters, key)
		}
	}
}

// Len returns the number of live counters.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
