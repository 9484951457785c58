package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genesis/internal/bootstrap"
	"genesis/internal/health"
	"genesis/internal/http/handlers"
	httpapi "genesis/internal/http/httpapi"
	"genesis/internal/infra"
	"genesis/internal/orchestrator"
	"genesis/internal/providers/aicore"
	"genesis/internal/ratelimit"
	"genesis/internal/storage"
	"genesis/internal/worker"
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.JobStore).Msg("failed to open job store")
	}
	defer store.Close()

	pool, err := worker.NewPool(worker.Config{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: cfg.GenerationBudget(),
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start worker pool")
	}

	client, err := aicore.NewClient(aicore.Options{
		BaseURL:         cfg.AICoreURL,
		Timeout:         cfg.AICoreTimeout,
		MaxRetries:      cfg.AICoreMaxRetries,
		RetryBackoff:    cfg.AICoreRetryBackoff,
		Logger:          &logger,
		BreakerFailures: 5,
		BreakerCooldown: cfg.AICoreTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation client")
	}

	opts := orchestrator.Options{Logger: &logger}
	if cfg.ArtifactsPath != "" {
		files, err := storage.NewFileStore(cfg.ArtifactsPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open artifacts directory")
		}
		opts.Artifacts = files
		logger.Info().Str("path", files.BasePath()).Msg("writing generated projects to disk")
	}
	orch := orchestrator.New(store.Repo, client, pool, opts)

	if store.Durable {
		if n, err := orch.FailStale(ctx, cfg.GenerationBudget()); err != nil {
			logger.Error().Err(err).Msg("failed to clear stale projects")
		} else if n > 0 {
			logger.Warn().Int("count", n).Msg("failed stale generating projects")
		}
		n, err := orch.ResumePending(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to resume pending projects")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("resumed pending projects")
		}
	}

	checker := health.NewAggregator(health.Options{Version: version, Load: pool, Logger: &logger})
	checker.Register("ai_core", client)
	checker.Register("ollama", health.HTTPProber{URL: cfg.OllamaURL + "/api/tags"})
	checker.Register("database", health.PingProber{Pinger: store.Repo})

	app := handlers.NewApp(orch, checker, pool, &logger)
	app.Ready = store.Repo.Ping

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		Limiter:        ratelimit.New(cfg.RateLimitMaxRequests, cfg.RateLimitWindow),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	logger.Info().Str("addr", server.Addr()).Str("store", cfg.JobStore).Int("workers", cfg.Workers).Msg("API listening")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	stop()
	logger.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		logger.Warn().Err(err).Int("in_flight", orch.InFlight()).Msg("workers did not drain before deadline")
	}
	logger.Info().Msg("server stopped")
}
