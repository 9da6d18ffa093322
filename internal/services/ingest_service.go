package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/events"
	"github.com/parkpulse/backend/internal/models"
	"go.uber.org/zap"
)

// ScanEvent is an authenticated scanner observation, already signature-checked
// by the handler.
type ScanEvent struct {
	Type        string
	VehicleID   string
	SlotID      string
	ScannerID   string
	RateCents   int64 // 0 = config default
	EscrowCents int64 // 0 = config default
	OccurredAt  time.Time
	Signature   string
	Raw         json.RawMessage
}

type IngestService struct {
	eventStore EventStore
	sessions   SessionStore
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewIngestService(eventStore EventStore, sessions SessionStore, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *IngestService {
	return &IngestService{
		eventStore: eventStore,
		sessions:   sessions,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// HandleScan records the event and applies it to session state. The event row
// is appended before type dispatch so even unknown-type payloads are audited.
// created reports whether a new session was opened (entry) vs. an existing one
// wound down (exit).
func (s *IngestService) HandleScan(ctx context.Context, scan ScanEvent) (sessionID uuid.UUID, created bool, err error) {
	ev := &models.Event{
		Type:       scan.Type,
		VehicleID:  scan.VehicleID,
		SlotID:     scan.SlotID,
		ScannerID:  scan.ScannerID,
		Signature:  scan.Signature,
		Payload:    scan.Raw,
		OccurredAt: scan.OccurredAt,
	}
	if err := s.eventStore.Append(ctx, ev); err != nil {
		return uuid.Nil, false, err
	}

	switch scan.Type {
	case models.EventTypeEntry:
		id, err := s.applyEntry(ctx, scan)
		return id, true, err
	case models.EventTypeExit:
		id, err := s.applyExit(ctx, scan)
		return id, false, err
	default:
		return uuid.Nil, false, apperrors.Validation("unknown type")
	}
}

func (s *IngestService) applyEntry(ctx context.Context, scan ScanEvent) (uuid.UUID, error) {
	rate := scan.RateCents
	if rate <= 0 {
		rate = s.cfg.DefaultRateCents
	}
	escrow := scan.EscrowCents
	if escrow <= 0 {
		escrow = s.cfg.DefaultEscrowDepositCents
	}

	session := &models.Session{
		VehicleID:          scan.VehicleID,
		SlotID:             scan.SlotID,
		Status:             models.SessionStatusPending,
		RatePerMinCents:    rate,
		EscrowDepositCents: escrow,
		StartTS:            scan.OccurredAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return uuid.Nil, err
	}

	s.publish(ctx, events.StreamSession, events.EventSessionCreated, map[string]any{
		"session_id": session.ID.String(),
		"vehicle_id": session.VehicleID,
		"slot_id":    session.SlotID,
	})

	s.log.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("vehicle_id", session.VehicleID),
		zap.Int64("rate_per_min_cents", rate),
	)
	return session.ID, nil
}

func (s *IngestService) applyExit(ctx context.Context, scan ScanEvent) (uuid.UUID, error) {
	session, err := s.sessions.FindOpenByVehicle(ctx, scan.VehicleID)
	if err != nil {
		if code := apperrors.GetCode(err); code == apperrors.CodeNotFound {
			return uuid.Nil, apperrors.NotFound("no active session")
		}
		return uuid.Nil, err
	}

	_, err = s.sessions.UpdateAtomic(ctx, session.ID, func(sess *models.Session) error {
		if !models.IsValidTransition(sess.Status, models.SessionStatusEnding) {
			return apperrors.Conflict("session already winding down")
		}
		sess.Status = models.SessionStatusEnding
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.publish(ctx, events.StreamSession, events.EventSessionEnding, map[string]any{
		"session_id": session.ID.String(),
		"vehicle_id": session.VehicleID,
	})

	s.log.Info("session ending",
		zap.String("session_id", session.ID.String()),
		zap.String("vehicle_id", session.VehicleID),
	)
	return session.ID, nil
}

// VehicleEvents returns the audit trail of scanner observations for a
// vehicle, newest first.
func (s *IngestService) VehicleEvents(ctx context.Context, vehicleID string, limit int) ([]models.Event, error) {
	if vehicleID == "" {
		return nil, apperrors.Validation("missing vehicle_id")
	}
	return s.eventStore.ListByVehicle(ctx, vehicleID, limit)
}

func (s *IngestService) publish(ctx context.Context, stream, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, stream, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
