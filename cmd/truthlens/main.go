// TruthLens - trust scoring for marketplace listings and their reviews.
// Copyright (c) 2025 TruthLens contributors
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/truthlens/truthlens/internal/analysis"
	"github.com/truthlens/truthlens/internal/api"
	"github.com/truthlens/truthlens/internal/bus"
	"github.com/truthlens/truthlens/internal/cache"
	"github.com/truthlens/truthlens/internal/calibration"
	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/narrative"
	"github.com/truthlens/truthlens/internal/orchestrator"
	"github.com/truthlens/truthlens/internal/phishing"
	"github.com/truthlens/truthlens/internal/repository"
	"github.com/truthlens/truthlens/internal/scoring"
	"github.com/truthlens/truthlens/internal/sentiment"
	"github.com/truthlens/truthlens/internal/siterisk"
	"github.com/truthlens/truthlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := domain.LoadConfig()

	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting truthlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"narrative", cfg.Narrative.Provider,
		"sentiment_model", cfg.Sentiment.ModelURL != "",
		"whitelist_size", len(cfg.Whitelist),
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("truthlens failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *domain.Config) error {
	reg := metrics.InitRegistry()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	if repo != nil {
		defer repo.Close()
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	if busImpl != nil {
		defer busImpl.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Sentiment: chosen once, at startup
	client := &http.Client{Timeout: cfg.Sentiment.Timeout}
	selectCtx, selectCancel := context.WithTimeout(ctx, cfg.Sentiment.Timeout)
	estimator := sentiment.Select(selectCtx, cfg.Sentiment, client)
	selectCancel()

	// Narrative, cached when a provider and a cache are both configured
	narrator, err := narrative.New(ctx, cfg.Narrative)
	if err != nil {
		return fmt.Errorf("failed to initialize narrative generator: %w", err)
	}
	if _, disabled := narrator.(narrative.Disabled); !disabled && cacheImpl != nil {
		narrator = narrative.NewCachedNarrator(narrator, cacheImpl, cfg.Cache.NarrativeTTL)
	}

	composer := scoring.NewComposer(scoring.DefaultWeights())

	engine, err := calibration.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize calibration engine: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Matcher:     phishing.NewMatcher(cfg.Whitelist),
		Analyzer:    analysis.NewAnalyzer(estimator, composer, narrator),
		SiteRisk:    siterisk.NewAssessorWith(siterisk.DefaultRedFlags(), siterisk.DefaultTrustSignals(), composer.LabelFor),
		Calibration: engine,
		Repository:  repo,
		EventBus:    busImpl,
	})
	if err != nil {
		return err
	}
	if err := orch.InitCalibration(ctx, cfg.Calibration); err != nil {
		return fmt.Errorf("failed to load calibration rules: %w", err)
	}
	slog.Info("calibration engine initialized", "rules_count", engine.RulesCount())

	// Async worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		if busImpl == nil {
			slog.Warn("async worker requested without an event bus, not started")
		} else {
			asyncWorker = worker.NewWorker(busImpl, orch)
			if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
				slog.Error("failed to start async worker", "error", err)
				asyncWorker = nil
			}
		}
	}

	srv := api.NewServer(cfg.Server, orch, cacheImpl, busImpl, reg, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("truthlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"estimator", estimator.Name(),
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("truthlens shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  TruthLens - listing trust scorer")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                   - Score a listing and its reviews")
	fmt.Println("    POST /analyze/async             - Queue a listing for the worker")
	fmt.Println("    POST /phishing                  - Classify a listing URL")
	fmt.Println("    GET  /analyses                  - List stored analyses")
	fmt.Println("    GET  /analyses/{id}             - Get a stored analysis")
	fmt.Println("    GET  /calibration/rules         - List calibration rules")
	fmt.Println("    POST /calibration/rules         - Create or replace a calibration rule")
	fmt.Println("    POST /calibration/rules/reload  - Hot-reload calibration rules")
	fmt.Println("    GET  /metrics                   - Prometheus metrics")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
