// Package cache provides an in-process L1 cache for provider configuration.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/router-for-me/strepsil/internal/models"
)

// defaultProviderTTL bounds staleness when another process edits providers.
const defaultProviderTTL = 5 * time.Minute

// ProviderCache caches provider rows by name.
type ProviderCache struct {
	c   *ristretto.Cache[string, models.Provider]
	ttl time.Duration
}

// NewProviderCache constructs a ProviderCache holding up to maxItems providers.
// Each entry costs 1, so MaxCost is an item count.
func NewProviderCache(maxItems int64, ttl time.Duration) (*ProviderCache, error) {
	if maxItems <= 0 {
		maxItems = 256
	}
	if ttl <= 0 {
		ttl = defaultProviderTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, models.Provider]{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderCache{c: c, ttl: ttl}, nil
}

// Get returns a cached provider.
func (p *ProviderCache) Get(name string) (models.Provider, bool) {
	if p == nil || p.c == nil {
		return models.Provider{}, false
	}
	return p.c.Get(name)
}

// Set stores a provider and waits until it is visible to readers.
func (p *ProviderCache) Set(provider models.Provider) {
	if p == nil || p.c == nil {
		return
	}
	p.c.SetWithTTL(provider.Name, provider, 1, p.ttl)
	p.c.Wait()
}

// Invalidate drops a provider after it was modified.
func (p *ProviderCache) Invalidate(name string) {
	if p == nil || p.c == nil {
		return
	}
	p.c.Del(name)
}

// Clear drops every cached provider.
func (p *ProviderCache) Clear() {
	if p == nil || p.c == nil {
		return
	}
	p.c.Clear()
}

// Close shuts down the cache and releases resources.
func (p *ProviderCache) Close() {
	if p == nil || p.c == nil {
		return
	}
	p.c.Close()
}
