package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/db"
	"github.com/parkpulse/backend/internal/events"
	"github.com/parkpulse/backend/internal/repositories"
	"github.com/parkpulse/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := repositories.NewSessionRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	settlementClient := services.NewSettlementClient(cfg.SettlementBaseURL, log)
	meterService := services.NewMeterService(sessionRepo, settlementClient, publisher, cfg, log)

	log.Info("meter worker started",
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Int64("release_threshold_cents", cfg.ReleaseThresholdCents),
		zap.Int64("release_batch_limit_cents", cfg.ReleaseBatchLimitCents),
	)

	tickTicker := time.NewTicker(cfg.TickInterval)
	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	defer tickTicker.Stop()
	defer reconcileTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-tickTicker.C:
			meterService.Tick(ctx, time.Now().UTC())
		case <-reconcileTicker.C:
			meterService.Reconcile(ctx)
		case <-sigCh:
			log.Info("shutting down meter worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
