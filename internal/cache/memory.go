package cache

import (
	"sync"

	"github.com/ngmaloney/weather-terminal/internal/identity"
)

// DefaultMemoryCapacity bounds the in-process tier.
const DefaultMemoryCapacity = 10

type memoryKey struct {
	slot      string
	fetchedAt string
}

// MemoryTier holds deserialized entries keyed by slot and the stored
// fetched_at text. Eviction is FIFO by insertion. A miss here only means the
// durable row has to be decoded again.
type MemoryTier struct {
	mu       sync.Mutex
	capacity int
	order    []memoryKey
	entries  map[memoryKey]*Entry
}

// NewMemoryTier creates a tier holding at most capacity entries.
func NewMemoryTier(capacity int) *MemoryTier {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryTier{
		capacity: capacity,
		entries:  make(map[memoryKey]*Entry, capacity),
	}
}

// Get returns a deep copy of the entry stored for slot at fetchedAt.
func (m *MemoryTier) Get(slot identity.Slot, fetchedAt string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[memoryKey{slot: slot.String(), fetchedAt: fetchedAt}]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Put stores a deep copy of e. Replacing an existing key keeps its
// original insertion position.
func (m *MemoryTier) Put(slot identity.Slot, fetchedAt string, e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{slot: slot.String(), fetchedAt: fetchedAt}
	cp := e.clone()
	if _, exists := m.entries[key]; exists {
		m.entries[key] = cp
		return
	}

	for len(m.order) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
	m.order = append(m.order, key)
	m.entries[key] = cp
}

// Purge drops every entry for slot regardless of timestamp.
func (m *MemoryTier) Purge(slot identity.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := slot.String()
	kept := m.order[:0]
	for _, key := range m.order {
		if key.slot == name {
			delete(m.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
}

// Reset empties the tier.
func (m *MemoryTier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.entries = make(map[memoryKey]*Entry, m.capacity)
}

// Len reports the number of cached entries.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Payload = e.Payload.Clone()
	cp.Observations = e.Observations.Clone()
	return &cp
}
