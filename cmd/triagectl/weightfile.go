package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/referral-triage-server/internal/domain"
)

// fileWeightStore persists weight-vector history as a JSON file in the
// data directory, so tuning runs survive across invocations. The file is
// rewritten whole on every mutation; histories stay small.
type fileWeightStore struct {
	mu   sync.Mutex
	path string
}

func newFileWeightStore(path string) *fileWeightStore {
	return &fileWeightStore{path: path}
}

func (s *fileWeightStore) load() ([]*domain.WeightVector, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading weight file: %w", err)
	}

	var vectors []*domain.WeightVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("parsing weight file %s: %w", s.path, err)
	}
	return vectors, nil
}

func (s *fileWeightStore) save(vectors []*domain.WeightVector) error {
	data, err := json.MarshalIndent(vectors, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing weight file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *fileWeightStore) Insert(ctx context.Context, v *domain.WeightVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range vectors {
		if existing.Version == v.Version {
			return fmt.Errorf("weight vector version %d already exists", v.Version)
		}
	}
	return s.save(append(vectors, v.Clone()))
}

func (s *fileWeightStore) Activate(ctx context.Context, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for _, v := range vectors {
		v.Active = v.Version == version
		found = found || v.Active
	}
	if !found {
		return domain.NewNotFoundError("weight_vector", fmt.Sprintf("%d", version))
	}
	return s.save(vectors)
}

func (s *fileWeightStore) Active(ctx context.Context) (*domain.WeightVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		if v.Active {
			return v.Clone(), nil
		}
	}
	return nil, domain.ErrNoActiveWeights
}

func (s *fileWeightStore) History(ctx context.Context, limit int) ([]*domain.WeightVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(vectors, func(i, j int) bool {
		return vectors[i].Version > vectors[j].Version
	})
	if limit > 0 && len(vectors) > limit {
		vectors = vectors[:limit]
	}
	return vectors, nil
}
