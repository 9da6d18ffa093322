package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, session_id, blockchain_identifier, funded, last_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.SessionID, p.BlockchainIdentifier, p.Funded, p.LastStatus).Scan(&p.CreatedAt)
}

func (r *PaymentRepo) Get(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, session_id, blockchain_identifier, funded, funded_at, last_status, created_at
		FROM payments WHERE id = $1
	`, id).Scan(&p.ID, &p.SessionID, &p.BlockchainIdentifier, &p.Funded, &p.FundedAt, &p.LastStatus, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) ListUnfunded(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, blockchain_identifier, funded, funded_at, last_status, created_at
		FROM payments WHERE funded = false
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.SessionID, &p.BlockchainIdentifier, &p.Funded,
			&p.FundedAt, &p.LastStatus, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkFunded flips funded exactly once. The guarded WHERE clause means only
// one caller ever observes won=true, even with the poller and an
// opportunistic re-poll racing.
func (r *PaymentRepo) MarkFunded(ctx context.Context, id string, lastStatus json.RawMessage) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET funded = true, funded_at = now(), last_status = $1
		WHERE id = $2 AND funded = false
	`, lastStatus, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) RecordStatus(ctx context.Context, id string, lastStatus json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `UPDATE payments SET last_status = $1 WHERE id = $2`, lastStatus, id)
	return err
}

// FindRelease looks up a prior release by idempotency key. A hit means the
// logical release already happened and its stored tx reference is replayed.
func (r *PaymentRepo) FindRelease(ctx context.Context, paymentID, idempotencyKey string) (*models.Release, error) {
	var rel models.Release
	err := r.pool.QueryRow(ctx, `
		SELECT id, payment_id, amount_cents, tx_hash, idempotency_key, submit_hash, raw_response, created_at
		FROM releases WHERE payment_id = $1 AND idempotency_key = $2
	`, paymentID, idempotencyKey).Scan(&rel.ID, &rel.PaymentID, &rel.AmountCents, &rel.TxHash,
		&rel.IdempotencyKey, &rel.SubmitHash, &rel.RawResponse, &rel.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func (r *PaymentRepo) AppendRelease(ctx context.Context, rel *models.Release) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO releases (payment_id, amount_cents, tx_hash, idempotency_key, submit_hash, raw_response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rel.PaymentID, rel.AmountCents, rel.TxHash, rel.IdempotencyKey, rel.SubmitHash, rel.RawResponse,
	).Scan(&rel.ID, &rel.CreatedAt)
}

func (r *PaymentRepo) ListReleases(ctx context.Context, paymentID string) ([]models.Release, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, amount_cents, tx_hash, idempotency_key, submit_hash, raw_response, created_at
		FROM releases WHERE payment_id = $1
		ORDER BY created_at
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []models.Release
	for rows.Next() {
		var rel models.Release
		if err := rows.Scan(&rel.ID, &rel.PaymentID, &rel.AmountCents, &rel.TxHash,
			&rel.IdempotencyKey, &rel.SubmitHash, &rel.RawResponse, &rel.CreatedAt); err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}
