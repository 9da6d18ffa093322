package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/models"
)

const sessionColumns = `id, vehicle_id, slot_id, status, rate_per_min_cents,
	accrued_cents, released_cents, escrow_deposit_cents, payment_id,
	start_ts, end_ts, last_tick_ts, percent_escrow_used, percent_paid_of_accrued,
	created_at, updated_at`

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sessions (vehicle_id, slot_id, status, rate_per_min_cents,
			accrued_cents, released_cents, escrow_deposit_cents, start_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, s.VehicleID, s.SlotID, s.Status, s.RatePerMinCents,
		s.AccruedCents, s.ReleasedCents, s.EscrowDepositCents, s.StartTS,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// FindOpenByVehicle returns the most recent session for the vehicle that has
// not started winding down.
func (r *SessionRepo) FindOpenByVehicle(ctx context.Context, vehicleID string) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE vehicle_id = $1 AND status = ANY($2)
		ORDER BY start_ts DESC
		LIMIT 1
	`, vehicleID, []string{models.SessionStatusActive, models.SessionStatusPending, models.SessionStatusAwaitingFunding})
	return scanSession(row)
}

func (r *SessionRepo) ListByStatus(ctx context.Context, statuses ...string) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = ANY($1)
		ORDER BY start_ts
	`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListEndedUnpaid returns ended sessions that still carry an unreleased
// balance and have an escrow to draw from.
func (r *SessionRepo) ListEndedUnpaid(ctx context.Context) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = $1 AND accrued_cents > released_cents AND payment_id IS NOT NULL
		ORDER BY end_ts
	`, models.SessionStatusEnded)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpdateAtomic applies fn to the session under a row lock and writes the
// result back in the same transaction. This is the only mutation path for the
// accrual and release ledgers, so concurrent ticks and release calls cannot
// lose updates. fn returning an error aborts without writing.
func (r *SessionRepo) UpdateAtomic(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions SET
			status = $1, accrued_cents = $2, released_cents = $3, payment_id = $4,
			end_ts = $5, last_tick_ts = $6, percent_escrow_used = $7,
			percent_paid_of_accrued = $8, updated_at = now()
		WHERE id = $9
	`, s.Status, s.AccruedCents, s.ReleasedCents, s.PaymentID,
		s.EndTS, s.LastTickTS, s.PercentEscrowUsed, s.PercentPaidOfAccrued, s.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.VehicleID, &s.SlotID, &s.Status, &s.RatePerMinCents,
		&s.AccruedCents, &s.ReleasedCents, &s.EscrowDepositCents, &s.PaymentID,
		&s.StartTS, &s.EndTS, &s.LastTickTS, &s.PercentEscrowUsed, &s.PercentPaidOfAccrued,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("session not found")
		}
		return nil, err
	}
	return &s, nil
}
