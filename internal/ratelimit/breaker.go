package ratelimit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// redisCooldown is how long Redis is skipped after a failure.
const redisCooldown = 30 * time.Second

// breaker keeps a failing backend out of the hot path for a cooldown period.
type breaker struct {
	mu       sync.Mutex
	cooldown time.Duration
	openTill time.Time
}

// open reports whether the backend is currently skipped.
func (b *breaker) open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openTill.IsZero() {
		return false
	}
	if now.Before(b.openTill) {
		return true
	}
	b.openTill = time.Time{}
	return false
}

// trip opens the breaker unless it is already open.
func (b *breaker) trip(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.openTill.IsZero() && now.Before(b.openTill) {
		return
	}
	cooldown := b.cooldown
	if cooldown <= 0 {
		cooldown = redisCooldown
	}
	b.openTill = now.Add(cooldown)
	log.WithError(err).Warnf("rate limit: redis unavailable, using memory counters for %s", cooldown)
}
