package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/events"
	"github.com/parkpulse/backend/internal/masumi"
	"github.com/parkpulse/backend/internal/models"
	"go.uber.org/zap"
)

// SettlementService owns the escrow lifecycle against the Masumi payment
// network: creation, funding confirmation by polling, and idempotent partial
// releases. There is no distributed transaction with the network; safety
// rests on the idempotency key and on recording only confirmed successes.
type SettlementService struct {
	sessions  SessionStore
	payments  PaymentStore
	network   EscrowNetwork
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewSettlementService(sessions SessionStore, payments PaymentStore, network EscrowNetwork, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *SettlementService {
	return &SettlementService{
		sessions:  sessions,
		payments:  payments,
		network:   network,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// CreatePayment opens an escrow contract for the session. On network failure
// nothing is written locally, so the call is safe to retry.
func (s *SettlementService) CreatePayment(ctx context.Context, sessionID uuid.UUID) (*models.Payment, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	info, err := s.network.CreatePayment(ctx, masumi.CreatePaymentRequest{
		SessionID:   sessionID,
		EscrowCents: session.EscrowDepositCents,
		Metadata: map[string]string{
			"session_id": sessionID.String(),
			"vehicle_id": session.VehicleID,
			"slot_id":    session.SlotID,
		},
	})
	if err != nil {
		return nil, apperrors.Upstream("masumi create failed", err)
	}

	payment := &models.Payment{
		ID:                   info.BlockchainIdentifier,
		SessionID:            sessionID,
		BlockchainIdentifier: info.BlockchainIdentifier,
		Funded:               false,
		LastStatus:           info.Raw,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	_, err = s.sessions.UpdateAtomic(ctx, sessionID, func(sess *models.Session) error {
		pid := payment.ID
		sess.PaymentID = &pid
		// The vehicle may already be exiting; only advance the status when the
		// FSM allows it.
		if models.IsValidTransition(sess.Status, models.SessionStatusAwaitingFunding) {
			sess.Status = models.SessionStatusAwaitingFunding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.StreamPayment, events.EventPaymentCreated, map[string]any{
		"payment_id": payment.ID,
		"session_id": sessionID.String(),
	})

	s.log.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("session_id", sessionID.String()),
		zap.Int64("escrow_cents", session.EscrowDepositCents),
	)
	return payment, nil
}

// Release authorizes an incremental fund release. Replaying a call with the
// same idempotency key returns the stored transaction reference without
// touching the network or the ledger.
func (s *SettlementService) Release(ctx context.Context, paymentID string, amountCents int64, sessionID uuid.UUID, idempotencyKey string) (string, error) {
	if paymentID == "" || idempotencyKey == "" || sessionID == uuid.Nil || amountCents <= 0 {
		return "", apperrors.Validation("missing fields")
	}

	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return "", err
	}

	if !payment.Funded {
		payment, err = s.refreshFunding(ctx, payment)
		if err != nil {
			s.log.Warn("opportunistic funding refresh failed",
				zap.String("payment_id", paymentID), zap.Error(err))
		}
		if payment == nil || !payment.Funded {
			return "", apperrors.Conflict("payment not funded yet")
		}
	}

	existing, err := s.payments.FindRelease(ctx, paymentID, idempotencyKey)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return txHashOrEmpty(existing.TxHash), nil
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if amountCents > session.UnpaidCents() {
		return "", apperrors.Validation("amount exceeds unpaid balance")
	}

	submitHash := masumi.ResultHash(sessionID.String(), payment.BlockchainIdentifier, amountCents, idempotencyKey)
	result, err := s.network.SubmitResult(ctx, payment.BlockchainIdentifier, submitHash)
	if err != nil {
		// No release row written, so a retry with the same key is safe.
		return "", apperrors.Upstream("masumi release failed", err)
	}

	release := &models.Release{
		PaymentID:      paymentID,
		AmountCents:    amountCents,
		IdempotencyKey: idempotencyKey,
		SubmitHash:     submitHash,
		RawResponse:    result.Raw,
	}
	if result.TxHash != "" {
		tx := result.TxHash
		release.TxHash = &tx
	}
	if err := s.payments.AppendRelease(ctx, release); err != nil {
		// A concurrent call with the same key may have won the unique index;
		// replay its stored reference.
		if dup, findErr := s.payments.FindRelease(ctx, paymentID, idempotencyKey); findErr == nil && dup != nil {
			return txHashOrEmpty(dup.TxHash), nil
		}
		return "", err
	}
	if err := s.payments.RecordStatus(ctx, paymentID, result.Raw); err != nil {
		s.log.Warn("failed to record payment status", zap.String("payment_id", paymentID), zap.Error(err))
	}

	_, err = s.sessions.UpdateAtomic(ctx, sessionID, func(sess *models.Session) error {
		sess.ReleasedCents += amountCents
		sess.RecomputePercents()
		return nil
	})
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.StreamPayment, events.EventReleaseRecorded, map[string]any{
		"payment_id":   paymentID,
		"session_id":   sessionID.String(),
		"amount_cents": amountCents,
		"tx_hash":      result.TxHash,
	})

	s.log.Info("release recorded",
		zap.String("payment_id", paymentID),
		zap.String("session_id", sessionID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.String("tx_hash", result.TxHash),
	)
	return result.TxHash, nil
}

// PaymentReleases returns the escrow record and its release history.
func (s *SettlementService) PaymentReleases(ctx context.Context, paymentID string) (*models.Payment, []models.Release, error) {
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	releases, err := s.payments.ListReleases(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	return payment, releases, nil
}

// PollFunding runs one reconciliation cycle over unfunded payments. Per-item
// failures are logged and skipped; the payment stays a candidate next cycle.
func (s *SettlementService) PollFunding(ctx context.Context) {
	payments, err := s.payments.ListUnfunded(ctx)
	if err != nil {
		s.log.Error("failed to list unfunded payments", zap.Error(err))
		return
	}

	for i := range payments {
		if _, err := s.refreshFunding(ctx, &payments[i]); err != nil {
			s.log.Warn("funding poll failed",
				zap.String("payment_id", payments[i].ID),
				zap.Error(err),
			)
		}
	}
}

// refreshFunding resolves the escrow's on-chain state and, on a recognized
// funded state, flips the payment exactly once and activates the session.
func (s *SettlementService) refreshFunding(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	status, err := s.network.ResolveStatus(ctx, payment.BlockchainIdentifier)
	if err != nil {
		return payment, err
	}

	if !masumi.IsFundedState(status.OnChainState) {
		if err := s.payments.RecordStatus(ctx, payment.ID, status.Raw); err != nil {
			s.log.Warn("failed to record payment status", zap.String("payment_id", payment.ID), zap.Error(err))
		}
		return payment, nil
	}

	won, err := s.payments.MarkFunded(ctx, payment.ID, status.Raw)
	if err != nil {
		return payment, err
	}
	payment.Funded = true

	if won {
		s.activateSession(ctx, payment.SessionID)
		s.publish(ctx, events.StreamPayment, events.EventPaymentFunded, map[string]any{
			"payment_id":     payment.ID,
			"session_id":     payment.SessionID.String(),
			"on_chain_state": status.OnChainState,
		})
		s.log.Info("payment funded",
			zap.String("payment_id", payment.ID),
			zap.String("on_chain_state", status.OnChainState),
		)
	}
	return payment, nil
}

// activateSession is the only path by which a session becomes billable.
func (s *SettlementService) activateSession(ctx context.Context, sessionID uuid.UUID) {
	_, err := s.sessions.UpdateAtomic(ctx, sessionID, func(sess *models.Session) error {
		// The vehicle may have exited before funding confirmed; leave ending
		// and ended sessions alone.
		if models.IsValidTransition(sess.Status, models.SessionStatusActive) {
			sess.Status = models.SessionStatusActive
		}
		return nil
	})
	if err != nil {
		s.log.Warn("failed to activate session", zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}

	s.publish(ctx, events.StreamSession, events.EventSessionActivated, map[string]any{
		"session_id": sessionID.String(),
	})
}

func (s *SettlementService) publish(ctx context.Context, stream, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, stream, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func txHashOrEmpty(tx *string) string {
	if tx == nil {
		return ""
	}
	return *tx
}
