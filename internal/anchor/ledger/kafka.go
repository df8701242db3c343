package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaLog anchors messages in a Kafka topic with unlimited retention. The
// broker assigns the offset, which together with topic and partition forms
// the transaction ref.
type KafkaLog struct {
	client       *kgo.Client
	brokers      []string
	topic        string
	fetchTimeout time.Duration
	logger       *slog.Logger
}

const defaultFetchTimeout = 10 * time.Second

type KafkaOption func(*KafkaLog)

// WithKafkaFetchTimeout caps how long Message waits for the broker.
func WithKafkaFetchTimeout(d time.Duration) KafkaOption {
	return func(l *KafkaLog) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(l *KafkaLog) {
		l.logger = logger
	}
}

// NewKafkaLog connects a producer to brokers. Call EnsureTopic before the
// first Submit in a fresh cluster.
func NewKafkaLog(brokers []string, topic string, opts ...KafkaOption) (*KafkaLog, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	l := &KafkaLog{
		client:       client,
		brokers:      brokers,
		topic:        topic,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// EnsureTopic creates the anchor topic with infinite retention when absent.
func (l *KafkaLog) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(l.client)
	retention := "-1"
	cleanup := "delete"
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, map[string]*string{
		"retention.ms":   &retention,
		"cleanup.policy": &cleanup,
	}, l.topic)
	if err != nil {
		return fmt.Errorf("create anchor topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create anchor topic: %w", resp.Err)
	}
	l.logger.InfoContext(ctx, "anchor topic ready", "topic", l.topic)
	return nil
}

// Submit produces message synchronously and waits for all in-sync replicas.
func (l *KafkaLog) Submit(ctx context.Context, message []byte) (Receipt, error) {
	rec := &kgo.Record{Topic: l.topic, Value: message}
	produced, err := l.client.ProduceSync(ctx, rec).First()
	if err != nil {
		return Receipt{}, fmt.Errorf("produce anchor message: %w", err)
	}
	pos := Position{Topic: produced.Topic, Partition: produced.Partition, Offset: produced.Offset}
	return Receipt{
		TransactionRef:     pos.String(),
		ConsensusTimestamp: produced.Timestamp.UTC(),
	}, nil
}

// Message reads the record at ref with a short-lived direct consumer. The
// read gives up after the fetch timeout even when ctx has no deadline.
func (l *KafkaLog) Message(ctx context.Context, ref string) ([]byte, error) {
	pos, err := ParsePosition(ref)
	if err != nil {
		return nil, err
	}
	if pos.Topic != l.topic {
		return nil, ErrMessageNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(l.brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			pos.Topic: {pos.Partition: kgo.NewOffset().At(pos.Offset)},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	for {
		fetches := consumer.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch anchor message %s: %w", ref, err)
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, kerr.OffsetOutOfRange) {
				return nil, ErrMessageNotFound
			}
			return nil, fmt.Errorf("fetch anchor message: %w", fe.Err)
		}
		var found []byte
		fetches.EachRecord(func(r *kgo.Record) {
			if found == nil && r.Partition == pos.Partition && r.Offset == pos.Offset {
				found = r.Value
			}
		})
		if found != nil {
			return found, nil
		}
	}
}

func (l *KafkaLog) Close() {
	l.client.Close()
}
