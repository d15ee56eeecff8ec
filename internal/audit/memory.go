package audit

import (
	"context"
	"sync"

	"civitec.org/internal/ids"
)

// InMemory implements Store for tests and DSN-less runs.
type InMemory struct {
	mu      sync.RWMutex
	entries []*Entry
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemory) List(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]*Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(res) < n; i-- {
		cp := *s.entries[i]
		res = append(res, &cp)
	}
	return res, nil
}
