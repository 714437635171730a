package session

import (
	"context"
	"sync"
)

// MemoryStore keeps session values in process memory. Suitable for dev/testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // session id -> key -> value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(_ context.Context, sid, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[sid][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

func (m *MemoryStore) Set(_ context.Context, sid, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.data[sid]
	if !ok {
		values = make(map[string][]byte)
		m.data[sid] = values
	}
	values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sid, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.data[sid]
	if !ok {
		return nil
	}
	delete(values, key)
	if len(values) == 0 {
		delete(m.data, sid)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
