package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/http/dto"
	"github.com/parkpulse/backend/internal/models"
	"github.com/parkpulse/backend/internal/services"
	"github.com/parkpulse/backend/internal/signing"
	"go.uber.org/zap"
)

type IngestHandler struct {
	service    *services.IngestService
	signingKey []byte
	log        *zap.Logger
}

func NewIngestHandler(service *services.IngestService, signingKey []byte, log *zap.Logger) *IngestHandler {
	return &IngestHandler{service: service, signingKey: signingKey, log: log}
}

// Scan is the signed scanner webhook. The signature covers every field except
// sig, over the canonical (sorted-key, compact) serialization.
func (h *IngestHandler) Scan(c *fiber.Ctx) error {
	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	payload, err := signing.DecodePayload(raw)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{OK: false, Error: "invalid json"})
	}

	sig, _ := payload[signing.SignatureField].(string)
	if !signing.Verify(payload, sig, h.signingKey) {
		h.log.Warn("rejected scan with bad signature",
			zap.String("scanner_id", getString(payload, "scanner_id")),
		)
		return writeError(c, apperrors.Authentication("invalid sig"))
	}

	scan := services.ScanEvent{
		Type:        getString(payload, "type"),
		VehicleID:   getString(payload, "vehicle_id"),
		SlotID:      getString(payload, "slot_id"),
		ScannerID:   getString(payload, "scanner_id"),
		RateCents:   getInt64(payload, "rate_per_min_cents"),
		EscrowCents: getInt64(payload, "escrow_deposit_cents"),
		OccurredAt:  occurredAt(payload),
		Signature:   sig,
		Raw:         json.RawMessage(raw),
	}

	sessionID, created, err := h.service.HandleScan(c.Context(), scan)
	if err != nil {
		return writeError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(dto.ScanResponse{OK: true, SessionID: sessionID.String()})
}

// VehicleEvents serves the per-vehicle scan audit trail.
func (h *IngestHandler) VehicleEvents(c *fiber.Ctx) error {
	events, err := h.service.VehicleEvents(c.Context(), c.Params("vehicle_id"), c.QueryInt("limit"))
	if err != nil {
		return writeError(c, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(dto.VehicleEventsResponse{OK: true, Events: events})
}

func getString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func getInt64(payload map[string]any, key string) int64 {
	if n, ok := payload[key].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			return v
		}
	}
	return 0
}

func occurredAt(payload map[string]any) time.Time {
	if ts := getInt64(payload, "ts"); ts > 0 {
		return time.Unix(ts, 0).UTC()
	}
	return time.Now().UTC()
}
