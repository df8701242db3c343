// Package store persists business profiles and their API keys.
package store

import (
	"context"
	"sync"
	"time"

	"confirmit/internal/business/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/sentinel"
)

var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)

type InMemoryStore struct {
	mu         sync.RWMutex
	businesses map[domain.BusinessID]*models.Business
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{businesses: make(map[domain.BusinessID]*models.Business)}
}

func (s *InMemoryStore) Create(_ context.Context, b *models.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.businesses[b.ID]; exists {
		return ErrConflict
	}
	s.businesses[b.ID] = b.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.BusinessID) (*models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// Execute validates and mutates a business under the store lock. A validate
// error is returned unchanged and nothing is written.
func (s *InMemoryStore) Execute(_ context.Context, id domain.BusinessID, validate func(*models.Business) error, mutate func(*models.Business)) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := b.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.businesses[id] = working
	return working.Clone(), nil
}

func (s *InMemoryStore) UpdateTrustScore(_ context.Context, id domain.BusinessID, score int, anchorRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return ErrNotFound
	}
	b.TrustScore = &score
	b.AnchorRef = anchorRef
	b.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) AddAPIKey(_ context.Context, id domain.BusinessID, key models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return ErrNotFound
	}
	if _, dup := b.FindKey(key.KeyID); dup {
		return ErrConflict
	}
	b.APIKeys = append(b.APIKeys, key)
	return nil
}

func (s *InMemoryStore) RecordProfileView(_ context.Context, id domain.BusinessID) error {
	return s.bump(id, func(st *models.Stats) { st.ProfileViews++ })
}

func (s *InMemoryStore) RecordVerification(_ context.Context, id domain.BusinessID) error {
	return s.bump(id, func(st *models.Stats) { st.Verifications++ })
}

func (s *InMemoryStore) bump(id domain.BusinessID, fn func(*models.Stats)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return ErrNotFound
	}
	fn(&b.Stats)
	return nil
}
