package progress

import (
	"context"
	"log/slog"
	"sync"

	"confirmit/internal/progress/metrics"
	"confirmit/pkg/domain"
)

// Hub is the in-process Broadcaster.
type Hub struct {
	mu      sync.Mutex
	subs    map[domain.ScanID]map[*Subscription]struct{}
	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type HubOption func(*Hub)

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithBufferSize sets each subscriber's channel capacity.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[domain.ScanID]map[*Subscription]struct{}),
		buffer: defaultBufferSize,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emit offers ev to every current subscriber of the scan without blocking.
// A terminal event closes and detaches those subscribers.
func (h *Hub) Emit(_ context.Context, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.IncrementEmitted("memory")
	subs := h.subs[ev.ScanID]
	for sub := range subs {
		select {
		case sub.events <- ev:
		default:
			h.metrics.IncrementDropped()
		}
	}
	if ev.Terminal() {
		for sub := range subs {
			h.detachLocked(sub)
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, scanID domain.ScanID) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscription(scanID, h.buffer, nil)
	sub.stop = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.detachLocked(sub)
	}

	h.mu.Lock()
	if h.subs[scanID] == nil {
		h.subs[scanID] = make(map[*Subscription]struct{})
	}
	h.subs[scanID][sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAttached()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscribers for a scan.
func (h *Hub) Subscribers(scanID domain.ScanID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scanID])
}

// detachLocked removes sub and closes its channel. The caller holds h.mu.
func (h *Hub) detachLocked(sub *Subscription) {
	subs, ok := h.subs[sub.ScanID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.ScanID)
	}
	close(sub.events)
	close(sub.done)
	h.metrics.SubscriberDetached()
}
