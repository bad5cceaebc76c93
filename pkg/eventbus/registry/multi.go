package registry

import (
	"slices"
	"sync"
)

// Multi is an append-only, thread-safe multimap with set semantics per key.
//
// Values under a key are kept in insertion order. Slices handed out by Get
// are never mutated afterwards: Add publishes a fresh slice instead.
type Multi[K comparable, V comparable] struct {
	mu      sync.RWMutex
	entries map[K][]V
	members map[K]map[V]struct{}
}

// NewMulti creates a new empty multimap.
func NewMulti[K comparable, V comparable]() *Multi[K, V] {
	return &Multi[K, V]{
		entries: make(map[K][]V),
		members: make(map[K]map[V]struct{}),
	}
}

// Add inserts value under key. Adding a value already present under the key
// is a no-op. It reports whether the value was inserted.
func (m *Multi[K, V]) Add(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.members[key]
	if !ok {
		set = make(map[V]struct{})
		m.members[key] = set
	}
	if _, exists := set[value]; exists {
		return false
	}
	set[value] = struct{}{}

	current := m.entries[key]
	next := make([]V, len(current), len(current)+1)
	copy(next, current)
	m.entries[key] = append(next, value)
	return true
}

// Get returns the values stored under key in insertion order, or nil.
// The returned slice is a snapshot and must not be modified.
func (m *Multi[K, V]) Get(key K) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clip(m.entries[key])
}

// Keys returns every key with at least one value. Order is not guaranteed.
func (m *Multi[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Size returns the total number of values across all keys.
func (m *Multi[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, vs := range m.entries {
		n += len(vs)
	}
	return n
}
