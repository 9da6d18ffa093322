package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/db"
	"github.com/parkpulse/backend/internal/events"
	apphttp "github.com/parkpulse/backend/internal/http"
	"github.com/parkpulse/backend/internal/http/dto"
	"github.com/parkpulse/backend/internal/http/handlers"
	"github.com/parkpulse/backend/internal/repositories"
	"github.com/parkpulse/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

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

	eventRepo := repositories.NewEventRepo(pool)
	sessionRepo := repositories.NewSessionRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	ingestService := services.NewIngestService(eventRepo, sessionRepo, publisher, cfg, log)
	ingestHandler := handlers.NewIngestHandler(ingestService, []byte(cfg.SigningKey), log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{OK: false, Error: err.Error()})
		},
	})

	apphttp.SetupIngestRouter(app, log, rdb, ingestHandler)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down ingestor...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.IngestPort)
	log.Info("starting ingestor", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
