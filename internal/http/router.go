package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/parkpulse/backend/internal/http/handlers"
	"github.com/parkpulse/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SetupIngestRouter wires the ingestor process: the signed scan webhook plus
// health.
func SetupIngestRouter(app *fiber.App, log *zap.Logger, rdb *redis.Client, ingestHandler *handlers.IngestHandler) {
	app.Use(recover.New())
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/ingest/scan", middleware.RateLimitMiddleware(rdb, 300, time.Minute), ingestHandler.Scan)
	app.Get("/vehicles/:vehicle_id/events", ingestHandler.VehicleEvents)
}

// SetupSettlementRouter wires the settlement agent's endpoints.
func SetupSettlementRouter(app *fiber.App, log *zap.Logger, paymentHandler *handlers.PaymentHandler) {
	app.Use(recover.New())
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/create_payment", paymentHandler.CreatePayment)
	app.Post("/release", paymentHandler.Release)
	app.Get("/payments/:payment_id/releases", paymentHandler.ListReleases)
}
