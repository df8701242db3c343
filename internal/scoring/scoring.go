// Package scoring assigns business trust scores and binds every score it
// issues to the consensus log before the score is persisted.
package scoring

//go:generate mockgen -source=scoring.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

const (
	MinScore = 0
	MaxScore = 100

	defaultInitialScore = 50

	// ReasonInitialVerification is recorded when a business is approved.
	ReasonInitialVerification = "Initial verification"
	// ReasonScoreUpdate is recorded for administrative score changes.
	ReasonScoreUpdate = "Score update"
)

var initialScores = map[int]int{
	1: 50,
	2: 70,
	3: 85,
}

// InitialScore maps a verification tier to the score a business starts with.
// Unknown tiers get the tier 1 score.
func InitialScore(tier int) int {
	if s, ok := initialScores[tier]; ok {
		return s
	}
	return defaultInitialScore
}

// ScoreSnapshot is the anchored form of a business score.
type ScoreSnapshot struct {
	BusinessID domain.BusinessID `json:"business_id"`
	TrustScore int               `json:"trust_score"`
	Reason     string            `json:"reason"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (s ScoreSnapshot) AnchorEntityID() string   { return s.BusinessID.String() }
func (s ScoreSnapshot) AnchorEntityType() string { return "business_score" }

type Anchorer interface {
	Anchor(ctx context.Context, entity anchormodels.Anchorable) (*anchormodels.Record, error)
}

// ScoreStore persists an anchored score on the business profile.
type ScoreStore interface {
	UpdateTrustScore(ctx context.Context, id domain.BusinessID, score int, anchorRef string, at time.Time) error
}

type Engine struct {
	anchorer Anchorer
	store    ScoreStore
	logger   *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(anchorer Anchorer, store ScoreStore, opts ...Option) (*Engine, error) {
	if anchorer == nil {
		return nil, errors.New("anchorer is required")
	}
	if store == nil {
		return nil, errors.New("score store is required")
	}
	e := &Engine{
		anchorer: anchorer,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Prove anchors a snapshot of the score without persisting anything. The
// caller stores the score together with the returned anchor reference.
func (e *Engine) Prove(ctx context.Context, id domain.BusinessID, score int, reason string) (*anchormodels.Record, error) {
	if err := validateScore(score); err != nil {
		return nil, err
	}
	snapshot := ScoreSnapshot{
		BusinessID: id,
		TrustScore: score,
		Reason:     reason,
		Timestamp:  requestcontext.Now(ctx).UTC(),
	}
	record, err := e.anchorer.Anchor(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "trust score anchored",
		"business_id", id,
		"trust_score", score,
		"reason", reason,
		"transaction_ref", record.TransactionRef,
	)
	return record, nil
}

// UpdateScore anchors the new score and then persists it. When anchoring
// fails nothing is written.
func (e *Engine) UpdateScore(ctx context.Context, id domain.BusinessID, score int) (*anchormodels.Record, error) {
	record, err := e.Prove(ctx, id, score, ReasonScoreUpdate)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateTrustScore(ctx, id, score, record.TransactionRef, requestcontext.Now(ctx)); err != nil {
		e.logger.ErrorContext(ctx, "anchored trust score not persisted",
			"business_id", id,
			"transaction_ref", record.TransactionRef,
			"error", err,
		)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "business not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist trust score")
	}
	return record, nil
}

func validateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return dErrors.New(dErrors.CodeValidation, "trust score must be between 0 and 100")
	}
	return nil
}
