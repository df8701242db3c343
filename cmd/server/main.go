package main

import (
	"context"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	anchorhandler "confirmit/internal/anchor/handler"
	"confirmit/internal/app"
	bizhandler "confirmit/internal/business/handler"
	fraudhandler "confirmit/internal/fraud/handler"
	"confirmit/internal/platform/config"
	"confirmit/internal/platform/httpserver"
	"confirmit/internal/platform/logger"
	"confirmit/internal/platform/metrics"
	"confirmit/internal/platform/postgres"
	rlmiddleware "confirmit/internal/ratelimit/middleware"
	rlmodels "confirmit/internal/ratelimit/models"
	rephandler "confirmit/internal/reputation/handler"
	scanhandler "confirmit/internal/scan/handler"
	scanmodels "confirmit/internal/scan/models"
	httptransport "confirmit/internal/transport/http"
)

// main loads configuration, wires the services and serves HTTP until
// SIGINT or SIGTERM.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIRMIT_CONFIG"), "path to a YAML config file")
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *migrate); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) error {
	a, err := app.Build(ctx, cfg, log, app.WithMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate && a.DB != nil {
		versions, err := postgres.Migrate(ctx, a.DB)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations applied", "versions", versions)
	}

	var checks []httptransport.HealthCheck
	for name, check := range a.HealthChecks() {
		checks = append(checks, httptransport.HealthCheck{Name: name, Check: check})
	}

	rl := rlmiddleware.New(a.RateLimits, log, rlmiddleware.WithDisabled(cfg.RateLimit.Disabled))

	router := httptransport.New(httptransport.Config{
		AdminToken:     cfg.Server.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log,
		httptransport.WithMetrics(metrics.New()),
		httptransport.WithHealthChecks(checks...),
		httptransport.WithHandlers(
			rephandler.New(a.Reputation, log, rephandler.WithRateLimit(rl.RateLimit(rlmodels.ClassLookup))),
			fraudhandler.New(a.Fraud, log, fraudhandler.WithRateLimit(rl.RateLimit(rlmodels.ClassReport))),
			bizhandler.New(a.Businesses, log, bizhandler.WithRateLimit(rl.RateLimit(rlmodels.ClassRegister))),
			scanhandler.New(a.Pipeline, a.Progress, log,
				scanhandler.WithRateLimit(rl.RateLimit(rlmodels.ClassScan)),
				scanhandler.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
				scanhandler.WithAnchorByDefault(cfg.Pipeline.AnchorByDefault),
				scanhandler.WithOriginPatterns(originPatterns(cfg.Server.AllowedOrigins)),
			),
			anchorhandler.New(a.Anchors, log,
				anchorhandler.WithResolver(scanmodels.Snapshot{}.AnchorEntityType(), a.ScanSnapshot),
			),
		),
	)

	log.InfoContext(ctx, "starting confirmit",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"storage", cfg.Storage.Driver,
		"ledger", cfg.Ledger.Driver,
		"analysis", cfg.Analysis.Driver,
		"progress", cfg.Progress.Driver,
		"rate_limit", cfg.RateLimit.Driver,
	)
	return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router), log)
}

// originPatterns converts CORS origins to the host patterns the WebSocket
// origin check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
