package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps runs in process memory. Records are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, r *Run) error {
	data, err := marshalRun(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; ok {
		return ErrExists
	}
	s.runs[r.ID] = data
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalRun(data)
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, r *Run) error {
	data, err := marshalRun(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return ErrNotFound
	}
	s.runs[r.ID] = data
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	runs := make([]*Run, 0, len(s.runs))
	for _, data := range s.runs {
		r, err := unmarshalRun(data)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		runs = append(runs, r)
	}
	s.mu.RUnlock()
	return newestFirst(runs, limit), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func newestFirst(runs []*Run, limit int) []*Run {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}
