package services

import (
	"context"
	"fmt"
	"time"

	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/events"
	"github.com/parkpulse/backend/internal/models"
	"go.uber.org/zap"
)

// MeterService converts elapsed dwell time into accrued charges and asks the
// settlement agent for incremental releases once the unpaid balance crosses
// the configured threshold.
type MeterService struct {
	sessions   SessionStore
	settlement ReleaseRequester
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewMeterService(sessions SessionStore, settlement ReleaseRequester, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *MeterService {
	return &MeterService{
		sessions:   sessions,
		settlement: settlement,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// Tick processes every billable session once. Per-session failures are logged
// and skipped; a bad session must never stall the loop.
func (s *MeterService) Tick(ctx context.Context, now time.Time) {
	sessions, err := s.sessions.ListByStatus(ctx, models.SessionStatusActive, models.SessionStatusEnding)
	if err != nil {
		s.log.Error("failed to list billable sessions", zap.Error(err))
		return
	}

	for i := range sessions {
		if err := s.processSession(ctx, &sessions[i], now); err != nil {
			s.log.Error("tick failed for session",
				zap.String("session_id", sessions[i].ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *MeterService) processSession(ctx context.Context, session *models.Session, now time.Time) error {
	target := targetAccrued(session.StartTS, now, session.RatePerMinCents)

	// The accrual bump is idempotent: re-applying the same target is a no-op,
	// so overlapping workers and repeated ticks are safe.
	fresh, err := s.sessions.UpdateAtomic(ctx, session.ID, func(sess *models.Session) error {
		if target > sess.AccruedCents {
			sess.AccruedCents = target
		}
		tick := now
		sess.LastTickTS = &tick
		return nil
	})
	if err != nil {
		return err
	}

	unpaid := fresh.UnpaidCents()

	if fresh.Status == models.SessionStatusEnding {
		return s.finalizeSession(ctx, fresh, unpaid, now)
	}

	if unpaid >= s.cfg.ReleaseThresholdCents && fresh.PaymentID != nil {
		amount := unpaid
		if amount > s.cfg.ReleaseBatchLimitCents {
			amount = s.cfg.ReleaseBatchLimitCents
		}
		key := fmt.Sprintf("%s-%d", fresh.ID, now.Unix())
		if err := s.settlement.RequestRelease(ctx, *fresh.PaymentID, amount, fresh.ID, key); err != nil {
			// Swallowed: unpaid stays above threshold, so the next tick retries.
			s.log.Warn("release request failed",
				zap.String("session_id", fresh.ID.String()),
				zap.Int64("amount_cents", amount),
				zap.Error(err),
			)
		}
	}
	return nil
}

// finalizeSession drains the outstanding balance and closes the session. Exit
// is the authoritative terminal signal: the session ends even when the final
// release fails, and the reconciliation sweep collects the remainder.
func (s *MeterService) finalizeSession(ctx context.Context, session *models.Session, unpaid int64, now time.Time) error {
	if unpaid > 0 && session.PaymentID != nil {
		key := fmt.Sprintf("%s-final-%d", session.ID, now.Unix())
		if err := s.settlement.RequestRelease(ctx, *session.PaymentID, unpaid, session.ID, key); err != nil {
			s.log.Warn("final release failed",
				zap.String("session_id", session.ID.String()),
				zap.Int64("unpaid_cents", unpaid),
				zap.Error(err),
			)
		}
	}

	_, err := s.sessions.UpdateAtomic(ctx, session.ID, func(sess *models.Session) error {
		if !models.IsValidTransition(sess.Status, models.SessionStatusEnded) {
			return nil // already ended by a concurrent tick
		}
		sess.Status = models.SessionStatusEnded
		end := now
		sess.EndTS = &end
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.EventSessionEnded, map[string]any{
		"session_id": session.ID.String(),
		"vehicle_id": session.VehicleID,
	})

	s.log.Info("session ended",
		zap.String("session_id", session.ID.String()),
		zap.Int64("unpaid_cents_at_close", unpaid),
	)
	return nil
}

// Reconcile retries the final release for ended sessions that still carry an
// unpaid balance. The idempotency key is derived from end_ts, so repeat sweeps
// replay instead of double-charging.
func (s *MeterService) Reconcile(ctx context.Context) {
	sessions, err := s.sessions.ListEndedUnpaid(ctx)
	if err != nil {
		s.log.Error("failed to list ended unpaid sessions", zap.Error(err))
		return
	}

	for i := range sessions {
		sess := &sessions[i]
		if sess.PaymentID == nil || sess.EndTS == nil {
			continue
		}
		unpaid := sess.UnpaidCents()
		if unpaid <= 0 {
			continue
		}
		key := fmt.Sprintf("%s-final-%d", sess.ID, sess.EndTS.Unix())
		if err := s.settlement.RequestRelease(ctx, *sess.PaymentID, unpaid, sess.ID, key); err != nil {
			s.log.Warn("reconcile release failed",
				zap.String("session_id", sess.ID.String()),
				zap.Int64("unpaid_cents", unpaid),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("reconciled ended session",
			zap.String("session_id", sess.ID.String()),
			zap.Int64("unpaid_cents", unpaid),
		)
	}
}

func (s *MeterService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.StreamSession, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// targetAccrued charges whole elapsed minutes only, clamped at zero for
// clock skew.
func targetAccrued(start, now time.Time, ratePerMinCents int64) int64 {
	minutes := int64(now.Sub(start) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return minutes * ratePerMinCents
}
