package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps access events in memory for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	events []AccessEvent
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Record(_ context.Context, event AccessEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStore) ListByApartment(_ context.Context, apartment string, limit int) ([]AccessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AccessEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].Apartment == apartment {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// Events returns a copy of everything recorded, in insertion order.
func (m *MemoryStore) Events() []AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AccessEvent, len(m.events))
	copy(out, m.events)
	return out
}

var _ Recorder = (*MemoryStore)(nil)
