package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"confirmit/internal/fraud/models"
	"confirmit/internal/identity"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/platform/middleware/metadata"
	"confirmit/pkg/requestcontext"
)

type Service interface {
	File(ctx context.Context, subject domain.SubjectHash, category, description string) (*models.Report, error)
	ListBySubject(ctx context.Context, subject domain.SubjectHash, limit int) ([]*models.Report, error)
	Review(ctx context.Context, id domain.ReportID, to models.Status) (*models.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	limit   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit wraps report filing with mw.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		if mw != nil {
			h.limit = mw
		}
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger, limit: passThrough}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func passThrough(next http.Handler) http.Handler { return next }

func (h *Handler) Register(r chi.Router) {
	r.With(h.limit).Post("/api/accounts/report-fraud", h.HandleReport)
	r.Get("/api/accounts/{hash}/reports", h.HandleList)
}

// RegisterAdmin mounts routes that must sit behind the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/api/accounts/reports/{id}/review", h.HandleReview)
}

type ReportRequest struct {
	AccountNumber string `json:"account_number"`
	Category      string `json:"category"`
	Description   string `json:"description"`
}

func (r *ReportRequest) Normalize() {
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
}

func (r *ReportRequest) Validate() error {
	if r.AccountNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "account_number is required")
	}
	return nil
}

type ReviewRequest struct {
	Status string `json:"status"`
}

func (r *ReviewRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	subject, err := identity.Hash(req.AccountNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.File(ctx, subject, req.Category, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "fraud report received",
		"request_id", requestID,
		"report_id", report.ID.String(),
		"client_ip", metadata.ClientIP(ctx),
		"device", metadata.Device(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, report)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	subject, err := domain.ParseSubjectHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a number"))
			return
		}
	}
	reports, err := h.service.ListBySubject(r.Context(), subject, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(reports),
		"reports": reports,
	})
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReportID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Review(ctx, id, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
