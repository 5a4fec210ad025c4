package settings

import (
	"sync"
	"time"
)

// Snapshot is an in-memory copy of plain settings values, refreshed after writes.
type Snapshot struct {
	mu        sync.RWMutex
	updatedAt time.Time
	values    map[string]string
}

// NewSnapshot constructs an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{values: make(map[string]string)}
}

// Store replaces the snapshot contents.
func (s *Snapshot) Store(updatedAt time.Time, values map[string]string) {
	if s == nil {
		return
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	s.mu.Lock()
	s.updatedAt = updatedAt
	s.values = copied
	s.mu.Unlock()
}

// Value returns the snapshot value for a key.
func (s *Snapshot) Value(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// UpdatedAt returns the newest update time seen in the snapshot.
func (s *Snapshot) UpdatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
