package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/http/dto"
	"github.com/parkpulse/backend/internal/models"
	"github.com/parkpulse/backend/internal/services"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service *services.SettlementService
	log     *zap.Logger
}

func NewPaymentHandler(service *services.SettlementService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "invalid json"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "missing session_id"})
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "invalid session_id"})
	}

	payment, err := h.service.CreatePayment(c.Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CreatePaymentResponse{
		OK:                   true,
		PaymentID:            payment.ID,
		BlockchainIdentifier: payment.BlockchainIdentifier,
	})
}

// ListReleases serves the release history of one escrow contract.
func (h *PaymentHandler) ListReleases(c *fiber.Ctx) error {
	payment, releases, err := h.service.PaymentReleases(c.Context(), c.Params("payment_id"))
	if err != nil {
		return writeError(c, err)
	}
	if releases == nil {
		releases = []models.Release{}
	}
	return c.JSON(dto.PaymentReleasesResponse{
		OK:        true,
		PaymentID: payment.ID,
		Funded:    payment.Funded,
		Releases:  releases,
	})
}

func (h *PaymentHandler) Release(c *fiber.Ctx) error {
	var req dto.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "invalid json"})
	}
	if req.PaymentID == "" || req.SessionID == "" || req.IdempotencyKey == "" || req.AmountCents <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "missing fields"})
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "missing fields"})
	}

	txHash, err := h.service.Release(c.Context(), req.PaymentID, req.AmountCents, sessionID, req.IdempotencyKey)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(dto.ReleaseResponse{OK: true, TxHash: txHash})
}
