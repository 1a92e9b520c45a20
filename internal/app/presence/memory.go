package presence

import (
	"context"
	"strings"
	"sync"
)

// MemoryBackend is an in-process Backend. It serves development setups and tests and
// behaves like the external store: no transactions, asynchronous ordered notifications.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
	feed *feed
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
		feed: newFeed(),
	}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Put implements Backend. A nil value removes the key.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	value = normalizeRaw(value)

	m.mu.Lock()
	if value == nil {
		delete(m.data, key)
	} else {
		m.data[key] = append([]byte(nil), value...)
	}
	// publish under the lock so watchers observe writes in commit order
	m.feed.publish(key, value)
	m.mu.Unlock()

	return nil
}

// Remove implements Backend.
func (m *MemoryBackend) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := key + "/"
	for k := range m.data {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			m.feed.publish(k, nil)
		}
	}

	return nil
}

// Watch implements Backend.
func (m *MemoryBackend) Watch(key string, fn ChangeFunc) (func(), error) {
	return m.feed.watch(key, m.Get, fn), nil
}

// Keys returns the number of stored keys.
func (m *MemoryBackend) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.feed.close()
	return nil
}
