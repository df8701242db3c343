package store

import (
	"context"
	"sync"
	"time"

	"confirmit/internal/reputation/models"
	"confirmit/pkg/domain"
)

// InMemoryStore keeps reputation records in a map guarded by one RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.SubjectHash]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.SubjectHash]*models.Record)}
}

// Find returns a copy of the record or ErrNotFound.
func (s *InMemoryStore) Find(_ context.Context, subject domain.SubjectHash) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// SaveRefresh writes oracle-derived fields. Fraud counters take the larger of
// the stored and incoming values; CheckCount is untouched.
func (s *InMemoryStore) SaveRefresh(_ context.Context, r models.Refresh) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[r.Subject]
	if !ok {
		rec = &models.Record{SubjectHash: r.Subject, CreatedAt: r.CheckedAt}
		s.records[r.Subject] = rec
	}
	if r.BankCode != "" {
		rec.BankCode = r.BankCode
	}
	rec.TrustScore = r.Assessment.TrustScore
	rec.RiskLevel = r.Assessment.RiskLevel
	rec.Fraud.Total = max(rec.Fraud.Total, r.Assessment.Fraud.Total)
	rec.Fraud.Recent30d = max(rec.Fraud.Recent30d, r.Assessment.Fraud.Recent30d)
	rec.VerifiedBusiness = r.VerifiedBusiness
	rec.Flags = refreshedFlags(rec.Flags, r.Assessment.Flags, rec.Fraud.Total)
	if r.CheckedAt.After(rec.LastChecked) {
		rec.LastChecked = r.CheckedAt
	}
	rec.UpdatedAt = r.CheckedAt
	return rec.Clone(), nil
}

// RecordCheck increments the check count and returns the new value.
func (s *InMemoryStore) RecordCheck(_ context.Context, subject domain.SubjectHash) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subject]
	if !ok {
		return 0, ErrNotFound
	}
	rec.CheckCount++
	return rec.CheckCount, nil
}

// RecordFraudReport bumps both fraud counters, creating the reported-subject
// record when none exists.
func (s *InMemoryStore) RecordFraudReport(_ context.Context, subject domain.SubjectHash, now time.Time) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subject]
	if !ok {
		rec = models.NewReportedRecord(subject, now)
		s.records[subject] = rec
		return rec.Clone(), nil
	}
	rec.Fraud.Total++
	rec.Fraud.Recent30d++
	rec.UpdatedAt = now
	return rec.Clone(), nil
}
