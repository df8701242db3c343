// Package pipeline runs a document scan through its stages, persisting each
// step before announcing it on the progress broadcaster.
//
// A scan runs to completion or failure once started; the caller's
// cancellation is ignored and each external call has its own timeout.
package pipeline

//go:generate mockgen -source=pipeline.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/identity"
	"confirmit/internal/progress"
	repmodels "confirmit/internal/reputation/models"
	repservice "confirmit/internal/reputation/service"
	"confirmit/internal/scan/analysis"
	"confirmit/internal/scan/metrics"
	"confirmit/internal/scan/models"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

const (
	MaxListLimit = 50

	defaultUploadTimeout     = 30 * time.Second
	defaultAnalysisTimeout   = 60 * time.Second
	defaultReputationTimeout = 5 * time.Second
	defaultAnchorTimeout     = 30 * time.Second
)

type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id domain.ScanID) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error)
}

type AssetStore interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (models.AssetRef, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.Analysis, error)
}

type Reputation interface {
	GetOrRefresh(ctx context.Context, req repservice.RefreshRequest) (*repmodels.Record, error)
}

type Anchorer interface {
	Anchor(ctx context.Context, entity anchormodels.Anchorable) (*anchormodels.Record, error)
}

// Timeouts bound each external call. Zero fields keep their defaults.
type Timeouts struct {
	Upload     time.Duration
	Analysis   time.Duration
	Reputation time.Duration
	Anchor     time.Duration
}

type Pipeline struct {
	store       Store
	assets      AssetStore
	analyzer    Analyzer
	broadcaster progress.Broadcaster
	reputation  Reputation
	anchorer    Anchorer
	timeouts    Timeouts
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	// now stamps stage events. The request time pinned in ctx only dates
	// the session itself.
	now func() time.Time
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithReputation enables the merchant account check.
func WithReputation(r Reputation) Option {
	return func(p *Pipeline) {
		p.reputation = r
	}
}

// WithAnchorer enables anchoring of completed scans.
func WithAnchorer(a Anchorer) Option {
	return func(p *Pipeline) {
		p.anchorer = a
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) {
		if t.Upload > 0 {
			p.timeouts.Upload = t.Upload
		}
		if t.Analysis > 0 {
			p.timeouts.Analysis = t.Analysis
		}
		if t.Reputation > 0 {
			p.timeouts.Reputation = t.Reputation
		}
		if t.Anchor > 0 {
			p.timeouts.Anchor = t.Anchor
		}
	}
}

func New(store Store, assets AssetStore, analyzer Analyzer, broadcaster progress.Broadcaster, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("scan store is required")
	}
	if assets == nil {
		return nil, errors.New("asset store is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if broadcaster == nil {
		return nil, errors.New("progress broadcaster is required")
	}
	p := &Pipeline{
		store:       store,
		assets:      assets,
		analyzer:    analyzer,
		broadcaster: broadcaster,
		timeouts: Timeouts{
			Upload:     defaultUploadTimeout,
			Analysis:   defaultAnalysisTimeout,
			Reputation: defaultReputationTimeout,
			Anchor:     defaultAnchorTimeout,
		},
		logger: slog.Default(),
		tracer: otel.Tracer("confirmit/scan"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run is the mutable state of one scan.
type run struct {
	session *models.Session
	upload  models.Upload
	opts    models.Options
	// account is the normalized payee account; the session only keeps the
	// masked form.
	account *identity.Account
}

// StartScan creates a session and runs every stage before returning.
// Observers may follow along through the broadcaster using the session id.
//
// On a stage failure the session is persisted as failed and returned
// together with the error. Stages already recorded are kept.
func (p *Pipeline) StartScan(ctx context.Context, upload models.Upload, opts models.Options) (*models.Session, error) {
	if len(upload.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a document is required")
	}
	if opts.Anchor && p.anchorer == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "anchoring is not configured")
	}

	ctx = context.WithoutCancel(ctx)
	id := opts.ScanID
	if id == "" {
		id = domain.NewScanID()
	}
	session := models.NewSession(id, upload.UserID, requestcontext.Now(ctx))
	if err := p.store.Create(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "receipt id is already in use")
		}
		p.logger.ErrorContext(ctx, "failed to create scan session", "scan_id", session.ID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create scan session")
	}

	p.metrics.ScanStarted()
	defer p.metrics.ScanFinished()
	p.logger.InfoContext(ctx, "scan started",
		"scan_id", session.ID,
		"bytes", len(upload.Data),
		"anchor", opts.Anchor,
		"check_reputation", opts.CheckReputation,
	)

	r := &run{session: session, upload: upload, opts: opts}
	if err := p.execute(ctx, r); err != nil {
		p.fail(ctx, r, err)
		p.metrics.IncrementScan(string(models.StatusFailed))
		return r.session.Clone(), err
	}
	p.metrics.IncrementScan(string(models.StatusCompleted))
	p.logger.InfoContext(ctx, "scan completed",
		"scan_id", session.ID,
		"verdict", session.Analysis.Verdict,
		"trust_score", session.Analysis.TrustScore,
	)
	return r.session.Clone(), nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) error {
	always := func(*run) bool { return true }
	steps := []struct {
		stage   string
		pct     int
		msg     string
		enabled func(*run) bool
		fn      func(context.Context, *run) error
	}{
		{models.StageUploading, 5, "Uploading document", always, p.uploadAsset},
		{models.StageAnalyzing, 30, "Analyzing document", always, p.analyze},
		{models.StageValidating, 60, "Validating analysis", always, p.validate},
		{models.StageReputation, 75, "Checking merchant account", p.wantsReputation, p.checkReputation},
		{models.StageFinalizing, 90, "Finalizing result", always, nil},
		{models.StageAnchoring, 95, "Anchoring result", func(r *run) bool { return r.opts.Anchor }, p.anchor},
	}

	// enabled is evaluated when the step is reached; the reputation check
	// depends on what validation found.
	for _, step := range steps {
		if !step.enabled(r) {
			continue
		}
		if err := p.advance(ctx, r, step.stage, step.pct, step.msg); err != nil {
			return err
		}
		if step.fn == nil {
			continue
		}
		if err := p.runStage(ctx, r, step.stage, step.fn); err != nil {
			return err
		}
	}

	r.session.Status = models.StatusCompleted
	return p.advance(ctx, r, models.StageCompleted, 100, "Scan complete")
}

func (p *Pipeline) runStage(ctx context.Context, r *run, stage string, fn func(context.Context, *run) error) error {
	ctx, span := p.tracer.Start(ctx, "scan."+stage, trace.WithAttributes(
		attribute.String("scan_id", r.session.ID.String()),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx, r)
	p.metrics.ObserveStage(stage, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage+" failed")
	}
	return err
}

// advance records a stage event and then broadcasts it. Nothing is broadcast
// when the write fails.
func (p *Pipeline) advance(ctx context.Context, r *run, stage string, pct int, msg string) error {
	if pct <= r.session.LastProgress() {
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("progress must increase: %s at %d", stage, pct))
	}
	now := p.now().UTC()
	r.session.Stages = append(r.session.Stages, models.StageEvent{
		Name:        stage,
		ProgressPct: pct,
		Message:     msg,
		Timestamp:   now,
	})
	r.session.UpdatedAt = now
	if err := p.store.Update(ctx, r.session); err != nil {
		r.session.Stages = r.session.Stages[:len(r.session.Stages)-1]
		if stage == models.StageCompleted {
			r.session.Status = models.StatusProcessing
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record scan progress")
	}
	p.broadcaster.Emit(ctx, progress.Event{
		ScanID:  r.session.ID,
		Pct:     pct,
		Message: msg,
		Stage:   stage,
		At:      now,
	})
	return nil
}

// fail persists the failed state, then announces it. The failed event repeats
// the last recorded percentage and is not added to the stage list. Nothing is
// broadcast when the failed state cannot be stored.
func (p *Pipeline) fail(ctx context.Context, r *run, cause error) {
	now := p.now().UTC()
	r.session.Status = models.StatusFailed
	r.session.FailureReason = failureReason(cause)
	r.session.UpdatedAt = now

	p.logger.WarnContext(ctx, "scan failed",
		"scan_id", r.session.ID,
		"progress", r.session.LastProgress(),
		"error", cause,
	)
	if err := p.recordFailure(ctx, r.session); err != nil {
		p.logger.ErrorContext(ctx, "failed to record scan failure",
			"scan_id", r.session.ID,
			"error", err,
		)
		return
	}
	p.broadcaster.Emit(ctx, progress.Event{
		ScanID:  r.session.ID,
		Pct:     r.session.LastProgress(),
		Message: r.session.FailureReason,
		Stage:   models.StageFailed,
		At:      now,
	})
}

// recordFailure writes the failed session, retrying once.
func (p *Pipeline) recordFailure(ctx context.Context, session *models.Session) error {
	err := p.store.Update(ctx, session)
	if err == nil || errors.Is(err, sentinel.ErrInvalidState) {
		return err
	}
	p.logger.WarnContext(ctx, "retrying scan failure write",
		"scan_id", session.ID,
		"error", err,
	)
	return p.store.Update(ctx, session)
}

func (p *Pipeline) uploadAsset(ctx context.Context, r *run) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Upload)
	defer cancel()
	ref, err := p.assets.Upload(callCtx, r.upload.Filename, r.upload.ContentType, r.upload.Data)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "document upload timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "document upload failed")
	}
	r.session.Asset = ref
	return p.advance(ctx, r, models.StageUploading, 10, "Document uploaded")
}

func (p *Pipeline) analyze(ctx context.Context, r *run) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Analysis)
	defer cancel()
	result, err := p.analyzer.Analyze(callCtx, analysis.Request{
		ImageURL:         r.session.Asset.URL,
		IncludeForensics: true,
		CheckReputation:  r.opts.CheckReputation,
	})
	if err != nil {
		switch {
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return dErrors.Wrap(err, dErrors.CodeTimeout, "document analysis timed out")
		case errors.Is(err, analysis.ErrRejected):
			return dErrors.Wrap(err, dErrors.CodeValidation, "document could not be analyzed")
		default:
			return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "analysis service unavailable")
		}
	}
	r.session.Analysis = result
	return nil
}

// validate normalizes the payee account the analysis read off the document.
// An unreadable account is reported as an issue rather than failing the scan.
func (p *Pipeline) validate(_ context.Context, r *run) error {
	a := r.session.Analysis
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if !a.Merchant.HasAccount() {
		return nil
	}
	acct, err := identity.Account{Number: a.Merchant.AccountNumber, BankCode: a.Merchant.BankCode}.Normalize()
	if err != nil {
		a.Issues = append(a.Issues, "Merchant account details could not be read")
		a.Merchant.AccountNumber = ""
		a.Merchant.BankCode = ""
		return nil
	}
	r.account = &acct
	a.Merchant.AccountNumber = identity.Mask(acct.Number)
	a.Merchant.BankCode = acct.BankCode
	return nil
}

func (p *Pipeline) wantsReputation(r *run) bool {
	return r.opts.CheckReputation && p.reputation != nil && r.account != nil
}

// checkReputation attaches the merchant account's reputation. A stale record
// served during an oracle outage is attached and marked stale.
func (p *Pipeline) checkReputation(ctx context.Context, r *run) error {
	subject, acct, err := identity.HashAccount(*r.account)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Reputation)
	defer cancel()

	rec, err := p.reputation.GetOrRefresh(callCtx, repservice.RefreshRequest{
		Subject:      subject,
		BankCode:     acct.BankCode,
		BusinessName: r.session.Analysis.Merchant.Name,
	})
	stale := false
	if err != nil {
		if rec == nil {
			return err
		}
		stale = true
		p.logger.WarnContext(ctx, "serving stale merchant reputation",
			"scan_id", r.session.ID,
			"subject", subject.Short(),
			"error", err,
		)
	}

	a := r.session.Analysis
	a.Reputation = &models.Reputation{
		SubjectHash: rec.SubjectHash,
		TrustScore:  rec.TrustScore,
		RiskLevel:   rec.RiskLevel,
		FraudTotal:  rec.Fraud.Total,
		Flags:       append([]string{}, rec.Flags...),
		Stale:       stale,
	}
	if rec.Fraud.Total > 0 {
		a.Issues = append(a.Issues, fmt.Sprintf("Merchant account has %d fraud report(s)", rec.Fraud.Total))
	}
	return nil
}

func (p *Pipeline) anchor(ctx context.Context, r *run) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Anchor)
	defer cancel()
	record, err := p.anchorer.Anchor(callCtx, models.SnapshotOf(r.session))
	if err != nil {
		return err
	}
	r.session.Anchor = record
	return nil
}

// Get returns a scan session.
func (p *Pipeline) Get(ctx context.Context, id domain.ScanID) (*models.Session, error) {
	session, err := p.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "scan not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load scan")
	}
	return session, nil
}

// ListByUser returns the user's newest scans. Limits outside 1..50 become 50.
func (p *Pipeline) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	sessions, err := p.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list scans")
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}

func failureReason(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "scan failed"
}
