// Package service serves cached reputation records, refreshing them from the
// reputation oracle when they are absent or older than the freshness window.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"confirmit/internal/platform/config"
	"confirmit/internal/reputation/metrics"
	"confirmit/internal/reputation/models"
	"confirmit/internal/reputation/oracle"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

type Store interface {
	Find(ctx context.Context, subject domain.SubjectHash) (*models.Record, error)
	SaveRefresh(ctx context.Context, r models.Refresh) (*models.Record, error)
	RecordCheck(ctx context.Context, subject domain.SubjectHash) (int64, error)
}

type Oracle interface {
	Check(ctx context.Context, q models.Query) (*models.Assessment, error)
}

// BusinessDirectory resolves an oracle-supplied business id to the registry summary.
type BusinessDirectory interface {
	VerifiedSummary(ctx context.Context, id domain.BusinessID) (*models.VerifiedBusiness, error)
}

// RefreshRequest identifies the subject and the optional context the oracle
// may use to score it.
type RefreshRequest struct {
	Subject      domain.SubjectHash
	BankCode     string
	BusinessName string
}

type Service struct {
	store      Store
	oracle     Oracle
	businesses BusinessDirectory
	window     time.Duration
	group      singleflight.Group
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
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

func WithBusinessDirectory(d BusinessDirectory) Option {
	return func(s *Service) {
		s.businesses = d
	}
}

func WithFreshnessWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

func New(store Store, oracle Oracle, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("reputation store is required")
	}
	if oracle == nil {
		return nil, errors.New("reputation oracle is required")
	}
	s := &Service{
		store:  store,
		oracle: oracle,
		window: config.FreshnessWindow,
		logger: slog.Default(),
		tracer: otel.Tracer("confirmit/reputation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the stored record without refreshing or counting the lookup.
func (s *Service) Get(ctx context.Context, subject domain.SubjectHash) (*models.Record, error) {
	rec, err := s.store.Find(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return rec, nil
}

// GetOrRefresh returns the subject's record, refreshing it from the oracle
// when absent or stale, and counts the check.
//
// When the oracle fails the stored record is left untouched and the check is
// not counted; a stale record, if any, is returned alongside the
// UpstreamUnavailable error so callers may degrade.
func (s *Service) GetOrRefresh(ctx context.Context, req RefreshRequest) (*models.Record, error) {
	now := requestcontext.Now(ctx)

	rec, err := s.store.Find(ctx, req.Subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	if rec.NeedsRefresh(now, s.window) {
		outcome := "miss"
		if rec != nil {
			outcome = "stale"
		}
		s.metrics.IncrementLookup(outcome)

		refreshed, err := s.refresh(ctx, req, now)
		if err != nil {
			return rec, err
		}
		rec = refreshed
	} else {
		s.metrics.IncrementLookup("hit")
		s.logger.DebugContext(ctx, "serving cached reputation", "subject", req.Subject.Short())
	}

	count, err := s.store.RecordCheck(ctx, req.Subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record account check")
	}
	rec.CheckCount = count
	return rec, nil
}

// refresh coalesces concurrent refreshes of one subject into a single oracle
// call. The shared call is detached from any one caller's cancellation.
func (s *Service) refresh(ctx context.Context, req RefreshRequest, now time.Time) (*models.Record, error) {
	v, err, shared := s.group.Do(req.Subject.String(), func() (any, error) {
		return s.doRefresh(context.WithoutCancel(ctx), req, now)
	})
	if shared {
		s.metrics.IncrementCoalesced()
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.Record).Clone(), nil
}

func (s *Service) doRefresh(ctx context.Context, req RefreshRequest, now time.Time) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.refresh",
		trace.WithAttributes(attribute.String("subject", req.Subject.Short())))
	defer span.End()

	start := time.Now()
	assessment, err := s.oracle.Check(ctx, models.Query{
		Subject:      req.Subject,
		BankCode:     req.BankCode,
		BusinessName: req.BusinessName,
	})
	s.metrics.ObserveOracleLatency(time.Since(start))
	if err != nil {
		category := string(oracle.CategoryOf(err))
		if category == "" {
			category = "unknown"
		}
		s.metrics.IncrementOracleFailure(category)
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle unavailable")
		s.logger.WarnContext(ctx, "reputation oracle unavailable",
			"subject", req.Subject.Short(),
			"category", category,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "reputation oracle unavailable")
	}

	saved, err := s.store.SaveRefresh(ctx, models.Refresh{
		Subject:          req.Subject,
		BankCode:         req.BankCode,
		Assessment:       *assessment,
		VerifiedBusiness: s.resolveBusiness(ctx, assessment.VerifiedBusinessID),
		CheckedAt:        now,
	})
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}

	s.logger.InfoContext(ctx, "reputation refreshed",
		"subject", req.Subject.Short(),
		"trust_score", saved.TrustScore,
		"risk_level", saved.RiskLevel,
	)
	return saved, nil
}

// resolveBusiness attaches the registry summary. An unknown or unreadable
// business is dropped rather than failing the refresh.
func (s *Service) resolveBusiness(ctx context.Context, rawID string) *models.VerifiedBusiness {
	if rawID == "" || s.businesses == nil {
		return nil
	}
	id, err := domain.ParseBusinessID(rawID)
	if err != nil {
		s.logger.WarnContext(ctx, "oracle returned malformed business id", "business_id", rawID)
		return nil
	}
	vb, err := s.businesses.VerifiedSummary(ctx, id)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.logger.WarnContext(ctx, "verified business lookup failed", "business_id", id, "error", err)
		}
		return nil
	}
	return vb
}
