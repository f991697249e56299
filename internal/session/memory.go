package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped
// on access and on every Put.
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates a MemoryStore reading time from clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{clock: clock, entries: make(map[string]memoryEntry)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	m.entries[key] = memoryEntry{value: buf, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key)
}

func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.lookup(key)
	delete(m.entries, key)
	return v, err
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for _, e := range m.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(key string) ([]byte, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}
