package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the trail in process memory, bounded to max entries
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	exported map[uuid.UUID]bool
	max      int
}

// NewMemoryStore creates an in-memory store keeping at most max entries (0 means 10000)
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryStore{exported: make(map[uuid.UUID]bool), max: max}
}

func (m *MemoryStore) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.max; over > 0 {
		for _, old := range m.entries[:over] {
			delete(m.exported, old.ID)
		}
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryStore) Pending(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if len(out) == limit {
			break
		}
		if !m.exported[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkExported(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.exported[id] = true
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
