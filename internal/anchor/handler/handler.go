// Package handler exposes anchor verification over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"confirmit/internal/anchor/models"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/requestcontext"
)

type Service interface {
	VerifyAnchor(ctx context.Context, ref string) (bool, error)
	Get(ctx context.Context, ref string) (*models.Record, error)
	VerifyIntegrity(ctx context.Context, ref string, entity models.Anchorable) (*models.Verification, error)
}

// Resolver loads the current anchored form of an entity so its digest can be
// recomputed.
type Resolver func(ctx context.Context, entityID string) (models.Anchorable, error)

type Handler struct {
	service   Service
	logger    *slog.Logger
	resolvers map[string]Resolver
}

type Option func(*Handler)

// WithResolver enables full integrity checks for anchors of entityType.
func WithResolver(entityType string, fn Resolver) Option {
	return func(h *Handler) {
		h.resolvers[entityType] = fn
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger, resolvers: map[string]Resolver{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/anchors/{ref}/verify", h.HandleVerify)
}

type VerifyResponse struct {
	TransactionRef string               `json:"transaction_id"`
	Verified       bool                 `json:"verified"`
	Anchor         *models.Record       `json:"anchor,omitempty"`
	Integrity      *models.Verification `json:"integrity,omitempty"`
	Valid          *bool                `json:"valid,omitempty"`
}

// HandleVerify reports whether ref is a known anchor. When the anchored
// entity type has a resolver the digest and the log message are re-checked.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "transaction ref is malformed"))
		return
	}

	exists, err := h.service.VerifyAnchor(ctx, ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := VerifyResponse{TransactionRef: ref, Verified: exists}
	if !exists {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	record, err := h.service.Get(ctx, ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp.Anchor = record

	resolve, ok := h.resolvers[record.EntityType]
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}
	entity, err := resolve(ctx, record.EntityID)
	if err != nil {
		h.logger.WarnContext(ctx, "anchored entity could not be resolved",
			"request_id", requestcontext.RequestID(ctx),
			"transaction_ref", ref,
			"entity_type", record.EntityType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.VerifyIntegrity(ctx, ref, entity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	valid := v.Valid()
	resp.Integrity = v
	resp.Valid = &valid
	httputil.WriteJSON(w, http.StatusOK, resp)
}
