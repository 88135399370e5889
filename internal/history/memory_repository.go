package history

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []*Record
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

// Append stores a copy of r.
func (m *InMemoryRepository) Append(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepare(r)
	r.CreatedAt = m.now().UTC()

	cpy := *r
	m.records = append(m.records, &cpy)
	return nil
}

// Recent returns up to limit records, newest first.
func (m *InMemoryRepository) Recent(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = ClampLimit(limit)
	out := make([]*Record, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		cpy := *m.records[i]
		out = append(out, &cpy)
	}
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
