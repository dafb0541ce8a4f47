package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/referral-triage-server/internal/domain"
)

// MemoryWeightStore is an in-memory domain.WeightStore for offline runs
// and tests.
type MemoryWeightStore struct {
	mu      sync.RWMutex
	vectors map[int64]*domain.WeightVector
	active  int64
}

// NewMemoryWeightStore creates an empty store.
func NewMemoryWeightStore() *MemoryWeightStore {
	return &MemoryWeightStore{
		vectors: make(map[int64]*domain.WeightVector),
	}
}

func (s *MemoryWeightStore) Insert(ctx context.Context, v *domain.WeightVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vectors[v.Version]; exists {
		return fmt.Errorf("weight vector version %d already exists", v.Version)
	}
	s.vectors[v.Version] = v.Clone()
	return nil
}

func (s *MemoryWeightStore) Activate(ctx context.Context, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vectors[version]; !exists {
		return &domain.NotFoundError{Resource: "weight_vector", ID: fmt.Sprintf("%d", version)}
	}
	for ver, v := range s.vectors {
		v.Active = ver == version
	}
	s.active = version
	return nil
}

func (s *MemoryWeightStore) Active(ctx context.Context) (*domain.WeightVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vectors[s.active]
	if !ok || !v.Active {
		return nil, domain.ErrNoActiveWeights
	}
	return v.Clone(), nil
}

func (s *MemoryWeightStore) History(ctx context.Context, limit int) ([]*domain.WeightVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxVersion int64
	for ver := range s.vectors {
		if ver > maxVersion {
			maxVersion = ver
		}
	}

	var history []*domain.WeightVector
	for ver := maxVersion; ver > 0 && (limit <= 0 || len(history) < limit); ver-- {
		if v, ok := s.vectors[ver]; ok {
			history = append(history, v.Clone())
		}
	}
	return history, nil
}
