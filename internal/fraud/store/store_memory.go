// Package store persists fraud reports.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"confirmit/internal/fraud/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/sentinel"
)

var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrInvalidState = sentinel.ErrInvalidState
)

type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[domain.ReportID]models.Report
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[domain.ReportID]models.Report)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.reports[r.ID] = *r
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ReportID) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// ListBySubject returns the newest reports first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject domain.SubjectHash, limit int) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Report
	for _, r := range s.reports {
		if r.Subject == subject {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReportedAt.After(out[j].ReportedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus moves a pending report to status. A report that is no longer
// pending yields ErrInvalidState.
func (s *InMemoryStore) UpdateStatus(_ context.Context, id domain.ReportID, status models.Status, at time.Time) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusPending {
		return nil, ErrInvalidState
	}
	r.Status = status
	r.ReviewedAt = &at
	s.reports[id] = r
	return &r, nil
}
