package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"confirmit/internal/identity"
	"confirmit/internal/reputation/models"
	"confirmit/internal/reputation/service"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, subject domain.SubjectHash) (*models.Record, error)
	GetOrRefresh(ctx context.Context, req service.RefreshRequest) (*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	limit   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit wraps the account check with mw.
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
	r.With(h.limit).Post("/api/accounts/check", h.HandleCheck)
	r.Get("/api/accounts/{hash}", h.HandleGet)
}

// CheckRequest is the body of POST /api/accounts/check.
type CheckRequest struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	BusinessName  string `json:"business_name"`
}

func (r *CheckRequest) Normalize() {
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.BankCode = strings.TrimSpace(r.BankCode)
	r.BusinessName = strings.TrimSpace(r.BusinessName)
}

func (r *CheckRequest) Validate() error {
	if len(r.BusinessName) > 200 {
		return dErrors.New(dErrors.CodeValidation, "business_name must be at most 200 characters")
	}
	if r.AccountNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "account_number is required")
	}
	return nil
}

// CheckResponse flags a record served from cache because the oracle failed.
type CheckResponse struct {
	*models.Record
	Stale bool `json:"stale,omitempty"`
}

// HandleCheck hashes the account and returns its reputation, refreshing it
// from the oracle when needed.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	subject, acct, err := identity.HashAccount(identity.Account{Number: req.AccountNumber, BankCode: req.BankCode})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.GetOrRefresh(ctx, service.RefreshRequest{
		Subject:      subject,
		BankCode:     acct.BankCode,
		BusinessName: req.BusinessName,
	})
	if err != nil && rec == nil {
		h.logger.ErrorContext(ctx, "account check failed",
			"request_id", requestID,
			"subject", subject.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CheckResponse{Record: rec, Stale: err != nil})
}

// HandleGet returns a cached record by hash without refreshing it.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	subject, err := domain.ParseSubjectHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
