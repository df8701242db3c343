package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"confirmit/internal/progress"
	"confirmit/internal/scan/models"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/requestcontext"
)

const (
	HeaderReceiptID = "X-Receipt-ID"

	formFile            = "file"
	defaultMaxUpload    = 10 << 20
	multipartMemory     = 8 << 20
	writeTimeout        = 5 * time.Second
	progressIdleTimeout = 10 * time.Minute
)

type Service interface {
	StartScan(ctx context.Context, upload models.Upload, opts models.Options) (*models.Session, error)
	Get(ctx context.Context, id domain.ScanID) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, scanID domain.ScanID) (*progress.Subscription, error)
}

type Handler struct {
	service         Service
	progress        Subscriber
	logger          *slog.Logger
	maxUploadBytes  int64
	anchorByDefault bool
	originPatterns  []string
	limit           func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithAnchorByDefault anchors scans whose request does not say otherwise.
func WithAnchorByDefault(v bool) Option {
	return func(h *Handler) {
		h.anchorByDefault = v
	}
}

// WithOriginPatterns sets the hosts allowed to open the progress socket
// from a browser. The request's own host is always allowed.
func WithOriginPatterns(patterns []string) Option {
	return func(h *Handler) {
		h.originPatterns = patterns
	}
}

// WithRateLimit wraps the upload route with mw.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		if mw != nil {
			h.limit = mw
		}
	}
}

func New(service Service, sub Subscriber, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		progress:       sub,
		logger:         logger,
		maxUploadBytes: defaultMaxUpload,
		limit:          func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.With(h.limit).Post("/api/receipts/scan", h.HandleScan)
	r.Get("/api/receipts", h.HandleList)
	r.Get("/api/receipts/{id}", h.HandleGet)
	r.Get("/api/receipts/{id}/progress", h.HandleProgress)
}

// HandleScan accepts a multipart upload and runs the scan to completion.
// The session id is returned in X-Receipt-ID even when the scan fails. A
// client that wants to watch progress may pick the id itself by sending
// X-Receipt-ID with the upload.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	upload, opts, err := h.readUpload(w, r)
	if err != nil {
		h.logger.InfoContext(ctx, "scan upload rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.StartScan(ctx, upload, opts)
	if session != nil {
		w.Header().Set(HeaderReceiptID, session.ID.String())
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (models.Upload, models.Options, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Upload{}, models.Options{}, dErrors.New(dErrors.CodeValidation, "file is too large")
		}
		return models.Upload{}, models.Options{}, dErrors.New(dErrors.CodeInvalidInput, "request must be multipart/form-data")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(formFile)
	if err != nil {
		return models.Upload{}, models.Options{}, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.Upload{}, models.Options{}, dErrors.New(dErrors.CodeInvalidInput, "could not read file")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	anchor, err := formBool(r, "anchor", h.anchorByDefault)
	if err != nil {
		return models.Upload{}, models.Options{}, err
	}
	checkReputation, err := formBool(r, "check_reputation", true)
	if err != nil {
		return models.Upload{}, models.Options{}, err
	}

	var scanID domain.ScanID
	if raw := strings.TrimSpace(r.Header.Get(HeaderReceiptID)); raw != "" {
		if scanID, err = domain.ParseScanID(raw); err != nil {
			return models.Upload{}, models.Options{}, err
		}
	}

	return models.Upload{
			Filename:    header.Filename,
			ContentType: contentType,
			Data:        data,
			UserID:      strings.TrimSpace(r.FormValue("user_id")),
		}, models.Options{
			Anchor:          anchor,
			CheckReputation: checkReputation,
			ScanID:          scanID,
		}, nil
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.New(dErrors.CodeValidation, key+" must be true or false")
	}
	return v, nil
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseScanID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a number"))
			return
		}
		limit = n
	}
	sessions, err := h.service.ListByUser(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"receipts": sessions,
	})
}

// HandleProgress streams a scan's progress over a WebSocket. It subscribes
// before reading the session so no event between the read and the first
// receive is lost. A finished scan gets its final event and a normal close.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseScanID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), progressIdleTimeout)
	defer cancel()
	sub, err := h.progress.Subscribe(subCtx, id)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "progress stream unavailable"))
		return
	}
	defer sub.Close()

	session, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(ctx, "progress websocket accept failed",
			"request_id", requestcontext.RequestID(ctx),
			"receipt_id", id.String(),
			"error", err,
		)
		return
	}
	defer conn.CloseNow()

	if session.Status.Terminal() {
		if err := h.write(ctx, conn, finalEvent(session)); err == nil {
			_ = conn.Close(websocket.StatusNormalClosure, string(session.Status))
		}
		return
	}

	connCtx := conn.CloseRead(subCtx)
	last := -1
	if current, ok := currentEvent(session); ok {
		if err := h.write(connCtx, conn, current); err != nil {
			return
		}
		last = current.Pct
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if ev.Pct < last || (ev.Pct == last && !ev.Terminal()) {
				continue
			}
			if err := h.write(connCtx, conn, ev); err != nil {
				return
			}
			last = ev.Pct
			if ev.Terminal() {
				_ = conn.Close(websocket.StatusNormalClosure, ev.Stage)
				return
			}
		case <-connCtx.Done():
			if errors.Is(subCtx.Err(), context.DeadlineExceeded) {
				_ = conn.Close(websocket.StatusGoingAway, "idle timeout")
			}
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, ev progress.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		h.logger.DebugContext(ctx, "progress write failed", "receipt_id", ev.ScanID.String(), "error", err)
		return err
	}
	return nil
}

func currentEvent(s *models.Session) (progress.Event, bool) {
	if len(s.Stages) == 0 {
		return progress.Event{}, false
	}
	st := s.Stages[len(s.Stages)-1]
	return progress.Event{ScanID: s.ID, Pct: st.ProgressPct, Message: st.Message, Stage: st.Name, At: st.Timestamp}, true
}

func finalEvent(s *models.Session) progress.Event {
	ev := progress.Event{ScanID: s.ID, Pct: s.LastProgress(), At: s.UpdatedAt}
	if s.Status == models.StatusFailed {
		ev.Stage = progress.StageFailed
		ev.Message = s.FailureReason
		return ev
	}
	ev.Stage = progress.StageCompleted
	if cur, ok := currentEvent(s); ok {
		ev.Message = cur.Message
	}
	return ev
}
