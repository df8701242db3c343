// Package service decides whether a client may call a rate limited endpoint.
package service

import (
	"context"
	"log/slog"
	"time"

	"confirmit/internal/ratelimit/metrics"
	"confirmit/internal/ratelimit/models"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/circuit"
)

// BucketStore is a sliding window counter.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Decision is a check result plus whether the fallback store answered it.
type Decision struct {
	*models.Result
	Degraded bool
}

type Service struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
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

// WithFallback answers checks from store while the primary is failing.
func WithFallback(store BucketStore) Option {
	return func(s *Service) {
		s.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func New(primary BucketStore, limits map[models.EndpointClass]models.Limit, opts ...Option) (*Service, error) {
	if primary == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "bucket store is required")
	}
	for class, l := range limits {
		if !class.IsValid() {
			return nil, dErrors.New(dErrors.CodeInternal, "unknown endpoint class "+class.String())
		}
		if l.Requests <= 0 || l.Window <= 0 {
			return nil, dErrors.New(dErrors.CodeInternal, "limit for "+class.String()+" must be positive")
		}
	}
	s := &Service{
		primary: primary,
		breaker: circuit.New("ratelimit-store"),
		limits:  limits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckIP consumes one request from ip's budget for class. An error means no
// store could answer; callers fail open.
func (s *Service) CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*Decision, error) {
	limit, ok := s.limits[class]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "no limit configured for "+class.String())
	}
	key := models.NewIPKey(class, ip)

	if s.fallback != nil && !s.breaker.Allow() {
		return s.degraded(ctx, key, class, limit)
	}

	result, err := s.primary.Allow(ctx, key, limit.Requests, limit.Window)
	if err != nil {
		s.metrics.IncrementStoreErrors()
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "rate limit store circuit opened", "breaker", s.breaker.Name())
		}
		if s.fallback == nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "rate limit store unavailable")
		}
		s.logger.WarnContext(ctx, "rate limit store failed, using fallback", "error", err, "class", class.String())
		return s.degraded(ctx, key, class, limit)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", s.breaker.Name())
	}
	s.metrics.ObserveDecision(class.String(), result.Allowed)
	return &Decision{Result: result}, nil
}

func (s *Service) degraded(ctx context.Context, key string, class models.EndpointClass, limit models.Limit) (*Decision, error) {
	result, err := s.fallback.Allow(ctx, key, limit.Requests, limit.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fallback rate limit store failed")
	}
	s.metrics.IncrementDegraded()
	s.metrics.ObserveDecision(class.String(), result.Allowed)
	return &Decision{Result: result, Degraded: true}, nil
}
