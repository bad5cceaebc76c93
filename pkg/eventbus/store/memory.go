package store

import (
	"context"
	"slices"
	"sync"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// MemoryStore keeps results and handler definitions in memory.
// Suitable for testing and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	defs    []eventbus.HandlerDefinition
	known   map[eventbus.HandlerDefinition]struct{}
	records []Record
	batches int
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{known: make(map[eventbus.HandlerDefinition]struct{})}
}

// Initialize records handler definitions, skipping ones already known.
func (s *MemoryStore) Initialize(_ context.Context, defs []eventbus.HandlerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, d := range defs {
		if _, ok := s.known[d]; ok {
			continue
		}
		s.known[d] = struct{}{}
		s.defs = append(s.defs, d)
	}
	return nil
}

// Store appends a batch.
func (s *MemoryStore) Store(_ context.Context, results []eventbus.DeliveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.records = append(s.records, NewRecords(results)...)
	s.batches++
	return nil
}

// Deliveries returns up to limit records, newest first. A limit <= 0
// returns everything.
func (s *MemoryStore) Deliveries(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := slices.Clone(s.records)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Definitions implements DefinitionLister. Definitions are kept in
// insertion order.
func (s *MemoryStore) Definitions(_ context.Context) ([]eventbus.HandlerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return slices.Clone(s.defs), nil
}

// Batches returns how many Store calls succeeded.
func (s *MemoryStore) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

// Close releases the store. Further calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
