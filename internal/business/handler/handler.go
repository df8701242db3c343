package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/business/models"
	"confirmit/internal/business/service"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/requestcontext"
)

type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Business, error)
	View(ctx context.Context, id domain.BusinessID) (*models.Business, error)
	Stats(ctx context.Context, id domain.BusinessID) (*models.StatsView, error)
	Approve(ctx context.Context, id domain.BusinessID) (*models.Business, error)
	Reject(ctx context.Context, id domain.BusinessID, reason string) (*models.Business, error)
	GenerateAPIKey(ctx context.Context, id domain.BusinessID, env string) (string, *models.APIKey, error)
	UpdateTrustScore(ctx context.Context, id domain.BusinessID, score int) (*models.Business, *anchormodels.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	limit   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit wraps self-registration with mw.
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
	r.With(h.limit).Post("/api/business/register", h.HandleRegister)
	r.Get("/api/business/{id}", h.HandleGet)
	r.Get("/api/business/{id}/stats", h.HandleStats)
}

// RegisterAdmin mounts the review and key management routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/api/business/{id}/approve", h.HandleApprove)
	r.Post("/api/business/{id}/reject", h.HandleReject)
	r.Put("/api/business/{id}/trust-score", h.HandleTrustScore)
	r.Post("/api/business/{id}/api-keys", h.HandleGenerateAPIKey)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	b, err := h.service.Register(ctx, service.RegisterRequest{
		Name:          req.Name,
		Category:      req.Category,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		AccountName:   req.AccountName,
		Tier:          req.Tier,
		Documents:     req.Documents,
	})
	if err != nil {
		h.logger.InfoContext(ctx, "business registration rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	b, err := h.service.View(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Approve(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.Reject(ctx, id, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleTrustScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TrustScoreRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, proof, err := h.service.UpdateTrustScore(ctx, id, *req.TrustScore)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TrustScoreResponse{Business: b, Anchor: proof})
}

func (h *Handler) HandleGenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := businessID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[APIKeyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	raw, key, err := h.service.GenerateAPIKey(ctx, id, req.Env)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, APIKeyResponse{
		APIKey: raw,
		Key:    key,
		Notice: "store this key now, it will not be shown again",
	})
}

func businessID(w http.ResponseWriter, r *http.Request) (domain.BusinessID, bool) {
	id, err := domain.ParseBusinessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}
