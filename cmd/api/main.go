package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicpulse/schedule-engine/internal/api/router"
	"github.com/clinicpulse/schedule-engine/internal/app/bootstrap"
	appconfig "github.com/clinicpulse/schedule-engine/internal/config"
	"github.com/clinicpulse/schedule-engine/internal/http/handlers"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting schedule-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	registry := prometheus.NewRegistry()
	engine, err := bootstrap.BuildEngine(cfg, pool, rdb, registry, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	routerCfg := &router.Config{
		Logger:          logger,
		Health:          handlers.NewHealthHandler(pool, logger),
		Predictions:     handlers.NewPredictionHandler(engine.NoShowService, engine.NoShowStore, logger),
		Gaps:            handlers.NewGapHandler(engine.GapDetector, engine.GapStore, engine.Reader, logger),
		Utilization:     handlers.NewUtilizationHandler(engine.Utilization, engine.UtilizationStore, logger),
		Recommendations: handlers.NewRecommendationHandler(engine.Advisor, engine.OverbookStore, logger),
		Slots:           handlers.NewSlotHandler(engine.Optimizer, logger),
		Recall:          handlers.NewRecallHandler(engine.Recall, engine.RecallStore, logger),
		Insights:        handlers.NewInsightHandler(engine.Insights, logger),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
