//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"confirmit/internal/business/models"
	"confirmit/internal/business/store"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "business_api_keys", "businesses"))
}

func (s *PostgresStoreSuite) newBusiness(tier int) *models.Business {
	now := time.Now().UTC().Truncate(time.Microsecond)
	b, err := models.NewBusiness(domain.NewBusinessID(), "Acme Stores", "retail",
		models.Contact{Email: "owner@acme.test", Phone: "+234", Address: "Lagos"},
		models.BankAccount{NumberSealed: []byte{0xde, 0xad}, Masked: "0123******", BankCode: "058", AccountName: "ACME"},
		tier, now)
	s.Require().NoError(err)
	return b
}

func (s *PostgresStoreSuite) createBusiness(tier int) *models.Business {
	b := s.newBusiness(tier)
	s.Require().NoError(s.store.Create(context.Background(), b))
	return b
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	b := s.createBusiness(2)

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(b.ID, found.ID)
	s.Equal(b.Contact, found.Contact)
	s.Equal(b.BankAccount, found.BankAccount)
	s.Equal(2, found.Tier)
	s.Equal(models.StatusPending, found.Status)
	s.Nil(found.TrustScore)
	s.Nil(found.VerifiedAt)
	s.Empty(found.APIKeys)
	s.Equal(map[string]string{}, found.Documents)

	withDocs := s.newBusiness(1)
	s.Require().NoError(withDocs.AttachDocuments(map[string]string{"id_card": "s3://docs/id.png"}))
	s.Require().NoError(s.store.Create(ctx, withDocs))
	found, err = s.store.FindByID(ctx, withDocs.ID)
	s.Require().NoError(err)
	s.Equal(map[string]string{"id_card": "s3://docs/id.png"}, found.Documents)

	_, err = s.store.FindByID(ctx, "BIZ-MISSING")
	s.ErrorIs(err, store.ErrNotFound)
	s.ErrorIs(s.store.Create(ctx, b), store.ErrConflict)
}

func (s *PostgresStoreSuite) TestExecuteApproval() {
	ctx := context.Background()
	b := s.createBusiness(3)
	now := time.Now().UTC().Truncate(time.Microsecond)

	updated, err := s.store.Execute(ctx, b.ID,
		func(b *models.Business) error { return b.CanApprove() },
		func(b *models.Business) { b.ApplyApproval(85, "confirmit.anchors/0/3", now) },
	)
	s.Require().NoError(err)
	s.True(updated.IsApproved())

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(85, *found.TrustScore)
	s.Equal("confirmit.anchors/0/3", found.AnchorRef)
	s.True(now.Equal(*found.VerifiedAt))
}

// Concurrent approvals serialize on the row lock; exactly one succeeds.
func (s *PostgresStoreSuite) TestExecuteSerializesConcurrentApprovals() {
	ctx := context.Background()
	b := s.createBusiness(1)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, b.ID,
				func(b *models.Business) error { return b.CanApprove() },
				func(b *models.Business) { b.ApplyApproval(50, "ref", time.Now()) },
			)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		}()
	}
	wg.Wait()
	s.Equal(1, succeeded)
}

func (s *PostgresStoreSuite) TestKeysScoresAndStats() {
	ctx := context.Background()
	b := s.createBusiness(1)
	created := time.Now().UTC().Truncate(time.Microsecond)

	key := models.APIKey{KeyID: "abcd1234", KeyHash: "$2a$10$hash", Env: models.EnvTest, CreatedAt: created}
	s.Require().NoError(s.store.AddAPIKey(ctx, b.ID, key))
	s.ErrorIs(s.store.AddAPIKey(ctx, b.ID, key), store.ErrConflict)
	s.ErrorIs(s.store.AddAPIKey(ctx, "BIZ-MISSING", models.APIKey{KeyID: "zz", Env: models.EnvLive, CreatedAt: created}), store.ErrNotFound)

	s.Require().NoError(s.store.UpdateTrustScore(ctx, b.ID, 64, "confirmit.anchors/0/8", created))
	s.ErrorIs(s.store.UpdateTrustScore(ctx, "BIZ-MISSING", 64, "x", created), store.ErrNotFound)

	s.Require().NoError(s.store.RecordProfileView(ctx, b.ID))
	s.Require().NoError(s.store.RecordVerification(ctx, b.ID))
	s.ErrorIs(s.store.RecordProfileView(ctx, "BIZ-MISSING"), store.ErrNotFound)

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Len(found.APIKeys, 1)
	s.Equal("abcd1234", found.APIKeys[0].KeyID)
	s.Equal(models.EnvTest, found.APIKeys[0].Env)
	s.Equal(64, *found.TrustScore)
	s.Equal(models.Stats{ProfileViews: 1, Verifications: 1}, found.Stats)
}
