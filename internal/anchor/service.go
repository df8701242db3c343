// Package anchor binds entity digests to the consensus log and verifies them
// later. The log is the source of truth; local records are an index into it.
package anchor

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"confirmit/internal/anchor/ledger"
	"confirmit/internal/anchor/metrics"
	"confirmit/internal/anchor/models"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

const defaultSubmitTimeout = 30 * time.Second

type Store interface {
	Create(ctx context.Context, r *models.Record) error
	FindByRef(ctx context.Context, ref string) (*models.Record, error)
	ListByEntity(ctx context.Context, entityID string) ([]*models.Record, error)
}

type Service struct {
	log         ledger.Log
	store       Store
	explorerURL string
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
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

// WithExplorerBaseURL sets the public viewer prefix for transaction refs.
func WithExplorerBaseURL(base string) Option {
	return func(s *Service) {
		s.explorerURL = strings.TrimRight(base, "/")
	}
}

// WithSubmitTimeout bounds a submission or a log read when the caller set no
// deadline.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(log ledger.Log, store Store, opts ...Option) (*Service, error) {
	if log == nil {
		return nil, errors.New("consensus log is required")
	}
	if store == nil {
		return nil, errors.New("anchor store is required")
	}
	s := &Service{
		log:     log,
		store:   store,
		timeout: defaultSubmitTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("confirmit/anchor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Anchor submits the entity's digest to the consensus log and records the
// receipt. No retry is attempted; a failed submission leaves nothing behind.
func (s *Service) Anchor(ctx context.Context, entity models.Anchorable) (*models.Record, error) {
	entityID, entityType := entity.AnchorEntityID(), entity.AnchorEntityType()
	if entityID == "" || entityType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "anchored entity needs an id and a type")
	}
	digest, err := Digest(entity)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "anchor.submit", trace.WithAttributes(
		attribute.String("entity_id", entityID),
		attribute.String("entity_type", entityType),
	))
	defer span.End()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	now := requestcontext.Now(ctx)
	payload, err := json.Marshal(models.Message{
		EntityID:   entityID,
		EntityType: entityType,
		DataHash:   digest,
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode anchor message")
	}

	start := time.Now()
	receipt, err := s.log.Submit(ctx, payload)
	s.metrics.ObserveSubmitLatency(time.Since(start))
	if err != nil {
		s.metrics.IncrementSubmission(entityType, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		s.logger.ErrorContext(ctx, "anchor submission failed",
			"entity_id", entityID,
			"entity_type", entityType,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeAnchorSubmissionFailed, "consensus log rejected or timed out")
	}

	record := &models.Record{
		ID:                 domain.NewAnchorID(),
		EntityID:           entityID,
		EntityType:         entityType,
		TransactionRef:     receipt.TransactionRef,
		ConsensusTimestamp: receipt.ConsensusTimestamp,
		DataHash:           digest,
		ExplorerURL:        s.explorerLink(receipt.TransactionRef),
		CreatedAt:          now,
	}
	if err := s.store.Create(context.WithoutCancel(ctx), record); err != nil {
		s.metrics.IncrementUnrecorded()
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "anchor accepted by log but not recorded",
			"entity_id", entityID,
			"transaction_ref", receipt.TransactionRef,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record anchor")
	}

	s.metrics.IncrementSubmission(entityType, "anchored")
	span.SetAttributes(attribute.String("transaction_ref", record.TransactionRef))
	s.logger.InfoContext(ctx, "entity anchored",
		"entity_id", entityID,
		"entity_type", entityType,
		"transaction_ref", record.TransactionRef,
	)
	return record, nil
}

// VerifyAnchor reports whether a local record exists for ref. It does not
// consult the log; use VerifyIntegrity for a full check.
func (s *Service) VerifyAnchor(ctx context.Context, ref string) (bool, error) {
	if strings.TrimSpace(ref) == "" {
		return false, dErrors.New(dErrors.CodeValidation, "transaction ref is required")
	}
	_, err := s.store.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load anchor")
	}
	return true, nil
}

// bound applies the submit timeout unless ctx already carries a deadline.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the local anchor record for ref.
func (s *Service) Get(ctx context.Context, ref string) (*models.Record, error) {
	r, err := s.store.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "anchor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load anchor")
	}
	return r, nil
}

// VerifyIntegrity recomputes the entity digest, compares it with the recorded
// hash and confirms the log still holds a matching message.
func (s *Service) VerifyIntegrity(ctx context.Context, ref string, entity models.Anchorable) (*models.Verification, error) {
	record, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	computed, err := Digest(entity)
	if err != nil {
		return nil, err
	}

	v := &models.Verification{
		TransactionRef: ref,
		RecordedHash:   record.DataHash,
		ComputedHash:   computed,
		EntityMatches:  record.EntityID == entity.AnchorEntityID() && record.EntityType == entity.AnchorEntityType(),
		DigestMatches:  record.DataHash == computed,
	}

	logCtx, cancel := s.bound(ctx)
	defer cancel()
	raw, err := s.log.Message(logCtx, ref)
	switch {
	case errors.Is(err, ledger.ErrMessageNotFound):
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "consensus log unavailable")
	default:
		var msg models.Message
		if json.Unmarshal(raw, &msg) == nil {
			v.LedgerConfirmed = msg.EntityID == record.EntityID && msg.DataHash == computed
		}
	}

	result := "valid"
	if !v.Valid() {
		result = "mismatch"
		s.logger.WarnContext(ctx, "anchor verification mismatch",
			"transaction_ref", ref,
			"entity_matches", v.EntityMatches,
			"digest_matches", v.DigestMatches,
			"ledger_confirmed", v.LedgerConfirmed,
		)
	}
	s.metrics.IncrementVerification(result)
	return v, nil
}

func (s *Service) ListByEntity(ctx context.Context, entityID string) ([]*models.Record, error) {
	records, err := s.store.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list anchors")
	}
	return records, nil
}

func (s *Service) explorerLink(ref string) string {
	if s.explorerURL == "" {
		return ""
	}
	return s.explorerURL + "/" + url.PathEscape(ref)
}
