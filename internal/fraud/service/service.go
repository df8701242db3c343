// Package service files and reviews fraud reports. Filing a report and
// bumping the subject's fraud counters happen in one transaction.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"confirmit/internal/fraud/metrics"
	"confirmit/internal/fraud/models"
	repmodels "confirmit/internal/reputation/models"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ReportStore interface {
	Create(ctx context.Context, r *models.Report) error
	FindByID(ctx context.Context, id domain.ReportID) (*models.Report, error)
	ListBySubject(ctx context.Context, subject domain.SubjectHash, limit int) ([]*models.Report, error)
	UpdateStatus(ctx context.Context, id domain.ReportID, status models.Status, at time.Time) (*models.Report, error)
}

// CounterStore is the reputation store's fraud counter.
type CounterStore interface {
	RecordFraudReport(ctx context.Context, subject domain.SubjectHash, now time.Time) (*repmodels.Record, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	reports  ReportStore
	counters CounterStore
	tx       TxRunner
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

func New(reports ReportStore, counters CounterStore, tx TxRunner, opts ...Option) (*Service, error) {
	if reports == nil {
		return nil, errors.New("report store is required")
	}
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		reports:  reports,
		counters: counters,
		tx:       tx,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// File records a pending report and increments the subject's fraud counters.
// Reports are not deduplicated.
func (s *Service) File(ctx context.Context, subject domain.SubjectHash, category, description string) (*models.Report, error) {
	now := requestcontext.Now(ctx)
	report, err := models.NewReport(domain.NewReportID(), subject, category, description, now)
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	var record *repmodels.Record
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.reports.Create(ctx, report); err != nil {
			return err
		}
		record, err = s.counters.RecordFraudReport(ctx, subject, now)
		return err
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to file fraud report")
	}

	s.metrics.IncrementFiled()
	if record.LastChecked.IsZero() && record.Fraud.Total == 1 {
		s.metrics.IncrementSubjectCreated()
	}
	s.logger.InfoContext(ctx, "fraud report filed",
		"report_id", report.ID.String(),
		"subject", subject.Short(),
		"category", report.Category,
		"fraud_total", record.Fraud.Total,
	)
	return report, nil
}

func (s *Service) Get(ctx context.Context, id domain.ReportID) (*models.Report, error) {
	r, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "fraud report not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fraud report")
	}
	return r, nil
}

// ListBySubject returns the newest reports first. limit <= 0 selects the default.
func (s *Service) ListBySubject(ctx context.Context, subject domain.SubjectHash, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	reports, err := s.reports.ListBySubject(ctx, subject, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fraud reports")
	}
	return reports, nil
}

// Review moves a pending report to verified or rejected. Counters are not
// adjusted; decay and reversal belong to an offline job.
func (s *Service) Review(ctx context.Context, id domain.ReportID, to models.Status) (*models.Report, error) {
	if to != models.StatusVerified && to != models.StatusRejected {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be verified or rejected")
	}
	r, err := s.reports.UpdateStatus(ctx, id, to, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "fraud report not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "fraud report has already been reviewed")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to review fraud report")
		}
	}
	s.metrics.IncrementReviewed(string(to))
	s.logger.InfoContext(ctx, "fraud report reviewed", "report_id", id.String(), "status", to)
	return r, nil
}
