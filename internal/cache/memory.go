package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Expired entries are swept lazily on Set.
type Memory struct {
	mu              sync.RWMutex
	entries         map[string]memoryEntry
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory store. cleanupInterval defaults to 5 minutes.
func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &Memory{
		entries:         make(map[string]memoryEntry),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Get returns the cached value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.entries[key] = memoryEntry{value: cp, expiresAt: now.Add(ttl)}

	if now.Sub(m.lastCleanup) >= m.cleanupInterval {
		m.lastCleanup = now
		for k, e := range m.entries {
			if !now.Before(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Store = (*Memory)(nil)
