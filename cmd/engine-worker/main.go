// The engine-worker runs the periodic bulk transitions: recommendation and
// gap expiry, recall step dispatch, and intent outbox delivery. Every loop
// is a guarded compare-and-set, so multiple workers can run concurrently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicpulse/schedule-engine/cmd/mainconfig"
	"github.com/clinicpulse/schedule-engine/internal/app/bootstrap"
	appconfig "github.com/clinicpulse/schedule-engine/internal/config"
	"github.com/clinicpulse/schedule-engine/internal/intents"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("engine worker requires DATABASE_URL")
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

	engine, err := bootstrap.BuildEngine(cfg, pool, rdb, prometheus.NewRegistry(), logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	var dispatcher *intents.Dispatcher
	if cfg.IntentQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := intents.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.IntentQueueURL)
		dispatcher = intents.NewDispatcher(engine.Outbox, queue, engine.Metrics, logger.Component("intents"))
	} else {
		logger.Warn("INTENT_QUEUE_URL not set; outbox dispatch disabled")
	}

	logger.Info("engine worker started",
		"expiry_interval", cfg.ExpiryInterval.String(),
		"dispatch_interval", cfg.DispatchInterval.String(),
	)

	go runExpiryLoop(ctx, cfg, engine, logger)
	go runDispatchLoop(ctx, cfg, engine, dispatcher, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("engine worker shutting down")
	cancel()
	// Give in-flight iterations a moment to finish.
	time.Sleep(time.Second)
}

// runExpiryLoop drives the TTL and elapsed-date transitions.
func runExpiryLoop(ctx context.Context, cfg *appconfig.Config, engine *bootstrap.Engine, logger *logging.Logger) {
	ticker := time.NewTicker(cfg.ExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Advisor.ExpireStale(ctx); err != nil {
				logger.Error("recommendation expiry failed", "error", err)
			}
			if n, err := engine.GapStore.ExpireElapsed(ctx, time.Now()); err != nil {
				logger.Error("gap expiry failed", "error", err)
			} else if n > 0 {
				logger.Info("elapsed gaps expired", "count", n)
			}
		}
	}
}

// runDispatchLoop drives recall step dispatch and outbox delivery.
func runDispatchLoop(ctx context.Context, cfg *appconfig.Config, engine *bootstrap.Engine, dispatcher *intents.Dispatcher, logger *logging.Logger) {
	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Recall.DispatchDue(ctx, cfg.RecallDispatchBatchSize); err != nil {
				logger.Error("recall dispatch failed", "error", err)
			}
			if dispatcher != nil {
				if _, err := dispatcher.DispatchPending(ctx, int32(cfg.RecallDispatchBatchSize)); err != nil {
					logger.Error("outbox dispatch failed", "error", err)
				}
			}
		}
	}
}
