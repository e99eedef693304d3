package checkpoints

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps checkpoints in memory. Used for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int][]byte)}
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	id := slices.Max(slices.Collect(maps.Keys(s.records)))
	return &Record{CycleID: id, Weights: slices.Clone(s.records[id])}, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, record Record) error {
	if record.CycleID < 0 {
		return errors.Errorf("invalid checkpoint cycle id %d", record.CycleID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.records[record.CycleID]; found {
		return errors.Wrapf(ErrExists, "cycle %d", record.CycleID)
	}
	s.records[record.CycleID] = slices.Clone(record.Weights)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.records)), nil
}
