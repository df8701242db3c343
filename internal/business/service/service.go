// Package service runs the business registry: registration, review, API keys
// and anchored trust scores.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/business/metrics"
	"confirmit/internal/business/models"
	"confirmit/internal/business/secrets"
	"confirmit/internal/identity"
	repmodels "confirmit/internal/reputation/models"
	"confirmit/internal/scoring"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, b *models.Business) error
	FindByID(ctx context.Context, id domain.BusinessID) (*models.Business, error)
	Execute(ctx context.Context, id domain.BusinessID, validate func(*models.Business) error, mutate func(*models.Business)) (*models.Business, error)
	AddAPIKey(ctx context.Context, id domain.BusinessID, key models.APIKey) error
	RecordProfileView(ctx context.Context, id domain.BusinessID) error
	RecordVerification(ctx context.Context, id domain.BusinessID) error
}

// Scorer proves and updates anchored trust scores.
type Scorer interface {
	Prove(ctx context.Context, id domain.BusinessID, score int, reason string) (*anchormodels.Record, error)
	UpdateScore(ctx context.Context, id domain.BusinessID, score int) (*anchormodels.Record, error)
}

// RegisterRequest carries a registration as submitted. The account number is
// sealed before anything is stored.
type RegisterRequest struct {
	Name          string
	Category      string
	Email         string
	Phone         string
	Address       string
	AccountNumber string
	BankCode      string
	AccountName   string
	Tier          int
	Documents     map[string]string
}

type Service struct {
	store   Store
	scorer  Scorer
	sealer  *secrets.Sealer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, scorer Scorer, sealer *secrets.Sealer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("business store is required")
	}
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if sealer == nil {
		return nil, errors.New("sealer is required")
	}
	s := &Service{
		store:  store,
		scorer: scorer,
		sealer: sealer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a pending business. The bank account number is sealed
// with the business id as associated data.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Business, error) {
	acct, err := identity.Account{Number: req.AccountNumber, BankCode: req.BankCode}.Normalize()
	if err != nil {
		return nil, err
	}
	if acct.BankCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "bank code is required")
	}

	id := domain.NewBusinessID()
	sealed, err := s.sealer.Seal(acct.Number, []byte(id))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal bank account")
	}

	b, err := models.NewBusiness(id, req.Name, req.Category,
		models.Contact{
			Email:   req.Email,
			Phone:   strings.TrimSpace(req.Phone),
			Address: strings.TrimSpace(req.Address),
		},
		models.BankAccount{
			NumberSealed: sealed,
			Masked:       identity.Mask(acct.Number),
			BankCode:     acct.BankCode,
			AccountName:  strings.TrimSpace(req.AccountName),
		},
		req.Tier, requestcontext.Now(ctx),
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			var de *dErrors.Error
			errors.As(err, &de)
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}
	if err := b.AttachDocuments(req.Documents); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, b); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "business id collision, retry registration")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register business")
	}

	s.metrics.IncrementRegistered()
	s.logger.InfoContext(ctx, "business registered",
		"business_id", b.ID,
		"tier", b.Tier,
		"bank_account", b.BankAccount.Masked,
	)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id domain.BusinessID) (*models.Business, error) {
	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapBusinessErr(err)
	}
	return b, nil
}

// View returns the public profile and counts the view.
func (s *Service) View(ctx context.Context, id domain.BusinessID) (*models.Business, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordProfileView(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to record profile view", "business_id", id, "error", err)
	} else {
		b.Stats.ProfileViews++
	}
	return b, nil
}

// Approve assigns the tier's initial score, anchors it, and only then
// persists the approval. An anchoring failure leaves the business pending.
func (s *Service) Approve(ctx context.Context, id domain.BusinessID) (*models.Business, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.CanApprove(); err != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "business is not pending review")
	}

	score := scoring.InitialScore(b.Tier)
	proof, err := s.scorer.Prove(ctx, id, score, scoring.ReasonInitialVerification)
	if err != nil {
		s.logger.WarnContext(ctx, "business approval not anchored", "business_id", id, "error", err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	approved, err := s.store.Execute(ctx, id,
		func(b *models.Business) error {
			if err := b.CanApprove(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "business is not pending review")
			}
			return nil
		},
		func(b *models.Business) {
			b.ApplyApproval(score, proof.TransactionRef, now)
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "anchored approval not persisted",
			"business_id", id,
			"transaction_ref", proof.TransactionRef,
			"error", err,
		)
		return nil, wrapBusinessErr(err)
	}

	s.metrics.IncrementReviewed(string(models.StatusApproved))
	s.logger.InfoContext(ctx, "business approved",
		"business_id", id,
		"trust_score", score,
		"transaction_ref", proof.TransactionRef,
	)
	return approved, nil
}

func (s *Service) Reject(ctx context.Context, id domain.BusinessID, reason string) (*models.Business, error) {
	reason, err := models.ValidateRejectionReason(reason)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	rejected, err := s.store.Execute(ctx, id,
		func(b *models.Business) error {
			if err := b.CanReject(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "business is not pending review")
			}
			return nil
		},
		func(b *models.Business) {
			b.ApplyRejection(reason, now)
		},
	)
	if err != nil {
		return nil, wrapBusinessErr(err)
	}
	s.metrics.IncrementReviewed(string(models.StatusRejected))
	s.logger.InfoContext(ctx, "business rejected", "business_id", id)
	return rejected, nil
}

// GenerateAPIKey issues a key for env. The raw key is returned once; only its
// bcrypt hash is stored.
func (s *Service) GenerateAPIKey(ctx context.Context, id domain.BusinessID, env string) (string, *models.APIKey, error) {
	keyEnv, err := models.ParseEnv(env)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return "", nil, err
	}

	raw, err := secrets.GenerateAPIKey()
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(raw)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}
	key := models.APIKey{
		KeyID:     secrets.KeyID(raw),
		KeyHash:   hash,
		Env:       keyEnv,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.AddAPIKey(ctx, id, key); err != nil {
		return "", nil, wrapBusinessErr(err)
	}

	s.metrics.IncrementAPIKeyIssued(string(keyEnv))
	s.logger.InfoContext(ctx, "api key issued", "business_id", id, "key_id", key.KeyID, "env", keyEnv)
	return raw, &key, nil
}

// VerifyAPIKey authenticates raw as one of the business's keys.
func (s *Service) VerifyAPIKey(ctx context.Context, id domain.BusinessID, raw string) (*models.APIKey, error) {
	if !secrets.WellFormed(raw) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, ok := b.FindKey(secrets.KeyID(raw))
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	if err := secrets.Verify(raw, key.KeyHash); err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *Service) Stats(ctx context.Context, id domain.BusinessID) (*models.StatsView, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.StatsView(), nil
}

// UpdateTrustScore changes an approved business's score through the scoring
// engine, which anchors before it persists.
func (s *Service) UpdateTrustScore(ctx context.Context, id domain.BusinessID, score int) (*models.Business, *anchormodels.Record, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !b.IsApproved() {
		return nil, nil, dErrors.New(dErrors.CodeConflict, "only approved businesses carry a trust score")
	}
	proof, err := s.scorer.UpdateScore(ctx, id, score)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.IncrementScoreUpdate()

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, proof, nil
}

// VerifiedSummary resolves a business for a reputation record and counts the
// verification. Pending and rejected businesses resolve as unverified.
func (s *Service) VerifiedSummary(ctx context.Context, id domain.BusinessID) (*repmodels.VerifiedBusiness, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordVerification(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to record verification", "business_id", id, "error", err)
	}
	return &repmodels.VerifiedBusiness{
		BusinessID: b.ID,
		Name:       b.Name,
		Verified:   b.IsApproved(),
		TrustScore: b.Clone().TrustScore,
	}, nil
}

func wrapBusinessErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "business not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "business record conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "business store failure")
	}
}
