package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/db"
	"github.com/parkpulse/backend/internal/events"
	apphttp "github.com/parkpulse/backend/internal/http"
	"github.com/parkpulse/backend/internal/http/dto"
	"github.com/parkpulse/backend/internal/http/handlers"
	"github.com/parkpulse/backend/internal/masumi"
	"github.com/parkpulse/backend/internal/repositories"
	"github.com/parkpulse/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	cfg.ValidateSettlement(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := repositories.NewSessionRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	network := masumi.NewClient(cfg.MasumiAPIBaseURL, cfg.MasumiAPIKey, cfg.MasumiNetwork, cfg.MasumiAgentIdentifier, log)
	settlementService := services.NewSettlementService(sessionRepo, paymentRepo, network, publisher, cfg, log)
	paymentHandler := handlers.NewPaymentHandler(settlementService, log)

	// Background funding poller: the only path by which sessions become
	// billable.
	go func() {
		ticker := time.NewTicker(cfg.MasumiPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				settlementService.PollFunding(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{OK: false, Error: err.Error()})
		},
	})

	apphttp.SetupSettlementRouter(app, log, paymentHandler)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down settlement agent...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.SettlementPort)
	log.Info("starting settlement agent",
		zap.String("addr", addr),
		zap.String("masumi_network", cfg.MasumiNetwork),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
