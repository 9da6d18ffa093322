package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkpulse/backend/internal/models"
)

// EventRepo is the append-only scan event log. There are no update or delete
// paths on purpose.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, ev *models.Event) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO events (type, vehicle_id, slot_id, scanner_id, signature, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, ev.Type, ev.VehicleID, ev.SlotID, ev.ScannerID, ev.Signature, ev.Payload, ev.OccurredAt,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (r *EventRepo) ListByVehicle(ctx context.Context, vehicleID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, vehicle_id, slot_id, scanner_id, signature, payload, occurred_at, created_at
		FROM events WHERE vehicle_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.VehicleID, &ev.SlotID, &ev.ScannerID,
			&ev.Signature, &ev.Payload, &ev.OccurredAt, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
