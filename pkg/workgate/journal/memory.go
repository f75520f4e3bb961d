package journal

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory journal for testing and short-lived
// processes. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	byTask map[string][]int
	closed bool
}

// NewMemoryStore creates a new in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byTask: make(map[string][]int),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.byTask[evt.TaskID] = append(m.byTask[evt.TaskID], len(m.events))
	m.events = append(m.events, evt)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(taskID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	idxs := m.byTask[taskID]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.events[i])
	}
	return out, nil
}

// Tail implements Store.
func (m *MemoryStore) Tail(n int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	if n <= 0 || n > len(m.events) {
		n = len(m.events)
	}
	out := make([]Event, n)
	copy(out, m.events[len(m.events)-n:])
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
