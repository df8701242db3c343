// Package app assembles the services from configuration. The server and the
// operator CLI build the same graph so both act on the same stores and log.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"confirmit/internal/anchor"
	"confirmit/internal/anchor/ledger"
	anchormetrics "confirmit/internal/anchor/metrics"
	anchormodels "confirmit/internal/anchor/models"
	anchorstore "confirmit/internal/anchor/store"
	bizmetrics "confirmit/internal/business/metrics"
	"confirmit/internal/business/secrets"
	bizservice "confirmit/internal/business/service"
	bizstore "confirmit/internal/business/store"
	fraudmetrics "confirmit/internal/fraud/metrics"
	fraudservice "confirmit/internal/fraud/service"
	fraudstore "confirmit/internal/fraud/store"
	"confirmit/internal/platform/config"
	"confirmit/internal/platform/postgres"
	platformredis "confirmit/internal/platform/redis"
	"confirmit/internal/progress"
	progressmetrics "confirmit/internal/progress/metrics"
	rlmetrics "confirmit/internal/ratelimit/metrics"
	rlmodels "confirmit/internal/ratelimit/models"
	rlservice "confirmit/internal/ratelimit/service"
	"confirmit/internal/ratelimit/store/bucket"
	repmetrics "confirmit/internal/reputation/metrics"
	"confirmit/internal/reputation/oracle"
	repservice "confirmit/internal/reputation/service"
	repstore "confirmit/internal/reputation/store"
	"confirmit/internal/scan/analysis"
	"confirmit/internal/scan/assets"
	scanmetrics "confirmit/internal/scan/metrics"
	scanmodels "confirmit/internal/scan/models"
	"confirmit/internal/scan/pipeline"
	scanstore "confirmit/internal/scan/store"
	"confirmit/internal/scoring"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/tx"
)

// ErrNoDatabase is returned by operations that need Postgres when the
// process runs on in-memory stores.
var ErrNoDatabase = errors.New("storage driver is not postgres")

const (
	anchorTopicPartitions  = 1
	anchorTopicReplication = -1
)

// App holds the assembled services and the shared client handles.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB    *sql.DB
	Redis *platformredis.Client

	Anchors    *anchor.Service
	Reputation *repservice.Service
	Fraud      *fraudservice.Service
	Businesses *bizservice.Service
	Scoring    *scoring.Engine
	Pipeline   *pipeline.Pipeline
	Progress   progress.Broadcaster
	RateLimits *rlservice.Service

	closers []func()
}

type reputationStore interface {
	repservice.Store
	fraudservice.CounterStore
}

type businessStore interface {
	bizservice.Store
	scoring.ScoreStore
}

type stores struct {
	anchors    anchor.Store
	reputation reputationStore
	reports    fraudservice.ReportStore
	businesses businessStore
	scans      pipeline.Store
	tx         fraudservice.TxRunner
}

type options struct {
	metrics bool
}

type Option func(*options)

// WithMetrics registers the Prometheus collectors of every module. Only one
// App per process may enable it.
func WithMetrics() Option {
	return func(o *options) {
		o.metrics = true
	}
}

// Build connects every configured backend and wires the services. On error
// everything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	log, err := a.openLedger(ctx)
	if err != nil {
		return nil, err
	}

	anchorOpts := []anchor.Option{
		anchor.WithLogger(logger),
		anchor.WithExplorerBaseURL(cfg.Ledger.ExplorerBaseURL),
		anchor.WithSubmitTimeout(cfg.Ledger.SubmitTimeout),
	}
	if o.metrics {
		anchorOpts = append(anchorOpts, anchor.WithMetrics(anchormetrics.New()))
	}
	if a.Anchors, err = anchor.New(log, st.anchors, anchorOpts...); err != nil {
		return nil, err
	}

	if a.Scoring, err = scoring.New(a.Anchors, st.businesses, scoring.WithLogger(logger)); err != nil {
		return nil, err
	}

	key, err := cfg.Business.SealingKeyBytes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "business sealing key")
	}
	sealer, err := secrets.NewSealer(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "business sealing key")
	}
	bizOpts := []bizservice.Option{bizservice.WithLogger(logger)}
	if o.metrics {
		bizOpts = append(bizOpts, bizservice.WithMetrics(bizmetrics.New()))
	}
	if a.Businesses, err = bizservice.New(st.businesses, a.Scoring, sealer, bizOpts...); err != nil {
		return nil, err
	}

	repOpts := []repservice.Option{
		repservice.WithLogger(logger),
		repservice.WithBusinessDirectory(a.Businesses),
		repservice.WithFreshnessWindow(cfg.Reputation.FreshnessWindow),
	}
	if o.metrics {
		repOpts = append(repOpts, repservice.WithMetrics(repmetrics.New()))
	}
	client := oracle.New(cfg.Reputation.OracleURL, cfg.Reputation.OracleAPIKey, cfg.Reputation.OracleTimeout,
		oracle.WithLogger(logger))
	if a.Reputation, err = repservice.New(st.reputation, client, repOpts...); err != nil {
		return nil, err
	}

	fraudOpts := []fraudservice.Option{fraudservice.WithLogger(logger)}
	if o.metrics {
		fraudOpts = append(fraudOpts, fraudservice.WithMetrics(fraudmetrics.New()))
	}
	if a.Fraud, err = fraudservice.New(st.reports, st.reputation, st.tx, fraudOpts...); err != nil {
		return nil, err
	}

	if a.Progress, err = a.openProgress(ctx, o.metrics); err != nil {
		return nil, err
	}
	if a.Pipeline, err = a.buildPipeline(ctx, st.scans, o.metrics); err != nil {
		return nil, err
	}
	if a.RateLimits, err = a.buildRateLimits(ctx, o.metrics); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	switch a.Config.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, a.Config.Storage)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "postgres unavailable")
		}
		a.DB = db
		a.closers = append(a.closers, func() { _ = db.Close() })
		return &stores{
			anchors:    anchorstore.NewPostgres(db),
			reputation: repstore.NewPostgres(db),
			reports:    fraudstore.NewPostgres(db),
			businesses: bizstore.NewPostgres(db),
			scans:      scanstore.NewPostgres(db),
			tx:         tx.NewPostgres(db),
		}, nil
	default:
		a.Logger.WarnContext(ctx, "using in-memory stores; data is lost on restart")
		return &stores{
			anchors:    anchorstore.NewInMemoryStore(),
			reputation: repstore.NewInMemoryStore(),
			reports:    fraudstore.NewInMemoryStore(),
			businesses: bizstore.NewInMemoryStore(),
			scans:      scanstore.NewInMemoryStore(),
			tx:         tx.NoTx{},
		}, nil
	}
}

func (a *App) openLedger(ctx context.Context) (ledger.Log, error) {
	cfg := a.Config.Ledger
	if cfg.Driver != config.DriverKafka {
		a.Logger.WarnContext(ctx, "using in-memory consensus log; anchors are not durable")
		return ledger.NewMemoryLog(), nil
	}
	log, err := ledger.NewKafkaLog(cfg.Brokers, cfg.Topic, ledger.WithKafkaLogger(a.Logger))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "consensus log")
	}
	a.closers = append(a.closers, log.Close)
	if err := log.EnsureTopic(ctx, anchorTopicPartitions, anchorTopicReplication); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "consensus log unavailable")
	}
	return log, nil
}

func (a *App) openProgress(ctx context.Context, withMetrics bool) (progress.Broadcaster, error) {
	var m *progressmetrics.Metrics
	if withMetrics {
		m = progressmetrics.New()
	}
	cfg := a.Config
	if cfg.Progress.Driver != config.DriverRedis {
		return progress.NewHub(
			progress.WithHubLogger(a.Logger),
			progress.WithHubMetrics(m),
			progress.WithBufferSize(cfg.Progress.BufferSize),
		), nil
	}

	client, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}
	return progress.NewRedisBroadcaster(client.Client,
		progress.WithRedisLogger(a.Logger),
		progress.WithRedisMetrics(m),
		progress.WithRedisBufferSize(cfg.Progress.BufferSize),
	)
}

// openRedis connects once; later callers share the client.
func (a *App) openRedis(ctx context.Context) (*platformredis.Client, error) {
	if a.Redis != nil {
		return a.Redis, nil
	}
	client, err := platformredis.Open(ctx, a.Config.Redis)
	if errors.Is(err, platformredis.ErrNotConfigured) {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "redis.url is required")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "redis unavailable")
	}
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

// buildRateLimits keeps counters in Redis when configured, with an
// in-process fallback while Redis is failing.
func (a *App) buildRateLimits(ctx context.Context, withMetrics bool) (*rlservice.Service, error) {
	cfg := a.Config.RateLimit
	limits := map[rlmodels.EndpointClass]rlmodels.Limit{
		rlmodels.ClassScan:     {Requests: cfg.Scan.Requests, Window: cfg.Scan.Window},
		rlmodels.ClassReport:   {Requests: cfg.Report.Requests, Window: cfg.Report.Window},
		rlmodels.ClassLookup:   {Requests: cfg.Lookup.Requests, Window: cfg.Lookup.Window},
		rlmodels.ClassRegister: {Requests: cfg.Register.Requests, Window: cfg.Register.Window},
	}
	opts := []rlservice.Option{rlservice.WithLogger(a.Logger)}
	if withMetrics {
		opts = append(opts, rlservice.WithMetrics(rlmetrics.New()))
	}
	if cfg.Driver != config.DriverRedis {
		return rlservice.New(bucket.New(), limits, opts...)
	}
	client, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, rlservice.WithFallback(bucket.New()))
	return rlservice.New(bucket.NewRedis(client.Client), limits, opts...)
}

func (a *App) buildPipeline(ctx context.Context, st pipeline.Store, withMetrics bool) (*pipeline.Pipeline, error) {
	cfg := a.Config

	var store pipeline.AssetStore
	switch cfg.Assets.Driver {
	case config.DriverMinio:
		m, err := assets.NewMinio(ctx, assets.MinioConfig{
			Endpoint:      cfg.Assets.Endpoint,
			AccessKey:     cfg.Assets.AccessKey,
			SecretKey:     cfg.Assets.SecretKey,
			Bucket:        cfg.Assets.Bucket,
			Region:        cfg.Assets.Region,
			UseSSL:        cfg.Assets.UseSSL,
			PublicBaseURL: cfg.Assets.PublicBaseURL,
		}, assets.WithLogger(a.Logger))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "asset store unavailable")
		}
		store = m
	default:
		store = assets.NewMemoryStore()
	}

	var analyzer pipeline.Analyzer
	switch cfg.Analysis.Driver {
	case config.DriverOpenAI:
		analyzer = analysis.NewOpenAI(cfg.Analysis.OpenAIAPIKey, cfg.Analysis.OpenAIModel, cfg.Analysis.Timeout,
			analysis.WithOpenAILogger(a.Logger))
	case config.DriverHTTP:
		analyzer = analysis.NewHTTP(cfg.Analysis.BaseURL, cfg.Analysis.Timeout, analysis.WithHTTPLogger(a.Logger))
	default:
		return nil, dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("unknown analysis driver %q", cfg.Analysis.Driver))
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.Logger),
		pipeline.WithReputation(a.Reputation),
		pipeline.WithAnchorer(a.Anchors),
		pipeline.WithTimeouts(pipeline.Timeouts{
			Upload:     cfg.Assets.UploadTimeout,
			Analysis:   cfg.Analysis.Timeout,
			Reputation: cfg.Reputation.OracleTimeout,
			Anchor:     cfg.Ledger.SubmitTimeout,
		}),
	}
	if withMetrics {
		opts = append(opts, pipeline.WithMetrics(scanmetrics.New()))
	}
	return pipeline.New(st, store, analyzer, a.Progress, opts...)
}

// ScanSnapshot rebuilds the anchored form of a receipt scan so its anchor
// can be re-verified.
func (a *App) ScanSnapshot(ctx context.Context, entityID string) (anchormodels.Anchorable, error) {
	id, err := domain.ParseScanID(entityID)
	if err != nil {
		return nil, err
	}
	session, err := a.Pipeline.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return scanmodels.SnapshotOf(session), nil
}

// HealthChecks returns a ping per shared backend.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.DB != nil {
		checks["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	return checks
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
