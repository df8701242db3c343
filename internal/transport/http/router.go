// Package httptransport composes the module handlers into one chi router with
// the shared middleware stack, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confirmit/internal/platform/metrics"
	"confirmit/pkg/platform/httputil"
	"confirmit/pkg/platform/middleware/admin"
	"confirmit/pkg/platform/middleware/metadata"
	"confirmit/pkg/platform/middleware/request"
	"confirmit/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// Routes is implemented by every module handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers with operator-only routes.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Config struct {
	AdminToken     string
	AllowedOrigins []string
}

type Router struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	handlers []Routes
	checks   []HealthCheck
}

type Option func(*Router)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(r *Router) {
		r.checks = append(r.checks, checks...)
	}
}

// WithHandlers mounts module handlers. Handlers that also implement
// AdminRoutes get their admin routes behind the admin token.
func WithHandlers(handlers ...Routes) Option {
	return func(r *Router) {
		r.handlers = append(r.handlers, handlers...)
	}
}

// New builds the HTTP handler for the service.
func New(cfg Config, logger *slog.Logger, opts ...Option) http.Handler {
	rt := &Router{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(rt)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(rt.observe)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", admin.HeaderAdminToken, request.HeaderRequestID, "X-Receipt-ID"},
			ExposedHeaders: []string{request.HeaderRequestID, "X-Receipt-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", rt.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range rt.handlers {
		h.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
		for _, h := range rt.handlers {
			if a, ok := h.(AdminRoutes); ok {
				a.RegisterAdmin(r)
			}
		}
	})
	return r
}

// observe records request metrics labelled by route pattern, never by raw
// path, so ids do not explode label cardinality.
func (rt *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		rt.metrics.IncInFlight()
		defer func() {
			rt.metrics.DecInFlight()
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rt.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	if len(rt.checks) > 0 {
		resp.Checks = make(map[string]string, len(rt.checks))
	}
	for _, c := range rt.checks {
		if err := c.Check(ctx); err != nil {
			rt.logger.WarnContext(ctx, "health check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}
