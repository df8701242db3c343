// Package store persists anchor records. Neither implementation offers an
// update or delete path.
package store

import (
	"context"
	"sort"
	"sync"

	"confirmit/internal/anchor/models"
	"confirmit/pkg/platform/sentinel"
)

var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)

type InMemoryStore struct {
	mu    sync.RWMutex
	byRef map[string]models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byRef: make(map[string]models.Record)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRef[r.TransactionRef]; exists {
		return ErrConflict
	}
	s.byRef[r.TransactionRef] = *r
	return nil
}

func (s *InMemoryStore) FindByRef(_ context.Context, ref string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// ListByEntity returns the newest anchors first.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.byRef {
		if r.EntityID == entityID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
