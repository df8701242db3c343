package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/reputation/models"
	"confirmit/pkg/domain"
)

const subject = domain.SubjectHash("84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882")

func refresh(at time.Time, score int, fraud models.FraudSummary, flags ...string) models.Refresh {
	return models.Refresh{
		Subject:   subject,
		BankCode:  "058",
		CheckedAt: at,
		Assessment: models.Assessment{
			TrustScore: score,
			RiskLevel:  models.RiskLow,
			Fraud:      fraud,
			Flags:      flags,
		},
	}
}

func TestInMemoryStore_Find(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Find(context.Background(), subject)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_SaveRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("insert starts with zero checks", func(t *testing.T) {
		s := NewInMemoryStore()
		rec, err := s.SaveRefresh(ctx, refresh(now, 80, models.FraudSummary{}))
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.CheckCount)
		assert.Equal(t, now, rec.LastChecked)
		assert.Equal(t, "058", rec.BankCode)
	})

	t.Run("fraud counters never decrease", func(t *testing.T) {
		s := NewInMemoryStore()
		_, err := s.RecordFraudReport(ctx, subject, now)
		require.NoError(t, err)
		_, err = s.RecordFraudReport(ctx, subject, now)
		require.NoError(t, err)

		rec, err := s.SaveRefresh(ctx, refresh(now, 60, models.FraudSummary{Total: 1, Recent30d: 0}))
		require.NoError(t, err)
		assert.Equal(t, 2, rec.Fraud.Total)
		assert.Equal(t, 2, rec.Fraud.Recent30d)
		assert.Equal(t, 60, rec.TrustScore)
		assert.Contains(t, rec.Flags, models.ReportedFlag)
	})

	t.Run("last checked is non-decreasing", func(t *testing.T) {
		s := NewInMemoryStore()
		_, err := s.SaveRefresh(ctx, refresh(now, 80, models.FraudSummary{}))
		require.NoError(t, err)
		rec, err := s.SaveRefresh(ctx, refresh(now.Add(-time.Hour), 70, models.FraudSummary{}))
		require.NoError(t, err)
		assert.Equal(t, now, rec.LastChecked)
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		s := NewInMemoryStore()
		rec, err := s.SaveRefresh(ctx, refresh(now, 80, models.FraudSummary{}, "new_account"))
		require.NoError(t, err)
		rec.Flags[0] = "mutated"

		stored, err := s.Find(ctx, subject)
		require.NoError(t, err)
		assert.Equal(t, []string{"new_account"}, stored.Flags)
	})
}

func TestInMemoryStore_RecordCheck(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.RecordCheck(ctx, subject)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.SaveRefresh(ctx, refresh(time.Now(), 80, models.FraudSummary{}))
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordCheck(ctx, subject)
		}()
	}
	wg.Wait()

	rec, err := s.Find(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), rec.CheckCount)
}

func TestInMemoryStore_RecordFraudReport(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewInMemoryStore()

	rec, err := s.RecordFraudReport(ctx, subject, now)
	require.NoError(t, err)
	assert.Equal(t, models.ReportedTrustScore, rec.TrustScore)
	assert.Equal(t, models.RiskHigh, rec.RiskLevel)
	assert.True(t, rec.LastChecked.IsZero())

	rec, err = s.RecordFraudReport(ctx, subject, now)
	require.NoError(t, err)
	assert.Equal(t, models.FraudSummary{Total: 2, Recent30d: 2}, rec.Fraud)
	assert.Equal(t, []string{models.ReportedFlag}, rec.Flags)
}
