package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"confirmit/internal/progress/metrics"
	"confirmit/pkg/domain"
)

const channelPrefix = "scan:progress:"

// Channel is the pub/sub channel carrying a scan's events.
func Channel(scanID domain.ScanID) string {
	return channelPrefix + scanID.String()
}

// RedisBroadcaster fans events out across processes over Redis pub/sub.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type RedisOption func(*RedisBroadcaster)

func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(b *RedisBroadcaster) {
		b.logger = logger
	}
}

func WithRedisMetrics(m *metrics.Metrics) RedisOption {
	return func(b *RedisBroadcaster) {
		b.metrics = m
	}
}

func WithRedisBufferSize(n int) RedisOption {
	return func(b *RedisBroadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func NewRedisBroadcaster(client redis.UniversalClient, opts ...RedisOption) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	b := &RedisBroadcaster{
		client: client,
		buffer: defaultBufferSize,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Emit publishes ev. Failures are logged and counted, never returned.
func (b *RedisBroadcaster) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.metrics.IncrementFailure("encode")
		return
	}
	if err := b.client.Publish(context.WithoutCancel(ctx), Channel(ev.ScanID), payload).Err(); err != nil {
		b.metrics.IncrementFailure("publish")
		b.logger.WarnContext(ctx, "progress publish failed",
			"scan_id", ev.ScanID,
			"stage", ev.Stage,
			"error", err,
		)
		return
	}
	b.metrics.IncrementEmitted("redis")
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are delivered.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, scanID domain.ScanID) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(scanID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	fwdCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(scanID, b.buffer, cancel)
	b.metrics.SubscriberAttached()
	go b.forward(fwdCtx, ps, sub)
	return sub, nil
}

func (b *RedisBroadcaster) forward(ctx context.Context, ps *redis.PubSub, sub *Subscription) {
	defer func() {
		_ = ps.Close()
		close(sub.events)
		close(sub.done)
		b.metrics.SubscriberDetached()
	}()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.metrics.IncrementFailure("decode")
				b.logger.WarnContext(ctx, "malformed progress event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case sub.events <- ev:
			default:
				b.metrics.IncrementDropped()
			}
			if ev.Terminal() {
				return
			}
		}
	}
}
