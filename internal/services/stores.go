package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/masumi"
	"github.com/parkpulse/backend/internal/models"
)

// Store interfaces are defined here, on the consumer side; the concrete
// implementations live in internal/repositories.

type EventStore interface {
	Append(ctx context.Context, ev *models.Event) error
	ListByVehicle(ctx context.Context, vehicleID string, limit int) ([]models.Event, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindOpenByVehicle(ctx context.Context, vehicleID string) (*models.Session, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]models.Session, error)
	ListEndedUnpaid(ctx context.Context) ([]models.Session, error)
	// UpdateAtomic applies fn to the record under a row lock and persists the
	// result; fn returning an error aborts without writing.
	UpdateAtomic(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	ListUnfunded(ctx context.Context) ([]models.Payment, error)
	// MarkFunded flips funded false->true and reports whether this call won
	// the flip.
	MarkFunded(ctx context.Context, id string, lastStatus json.RawMessage) (bool, error)
	RecordStatus(ctx context.Context, id string, lastStatus json.RawMessage) error
	// FindRelease returns (nil, nil) when no release carries the key.
	FindRelease(ctx context.Context, paymentID, idempotencyKey string) (*models.Release, error)
	AppendRelease(ctx context.Context, rel *models.Release) error
	ListReleases(ctx context.Context, paymentID string) ([]models.Release, error)
}

// EscrowNetwork is the outbound surface of the Masumi payment service.
type EscrowNetwork interface {
	CreatePayment(ctx context.Context, req masumi.CreatePaymentRequest) (*masumi.PaymentInfo, error)
	ResolveStatus(ctx context.Context, blockchainIdentifier string) (*masumi.PaymentStatus, error)
	SubmitResult(ctx context.Context, blockchainIdentifier, submitHash string) (*masumi.SubmitResultResponse, error)
}

// ReleaseRequester is how the meter worker asks the settlement agent for an
// incremental release.
type ReleaseRequester interface {
	RequestRelease(ctx context.Context, paymentID string, amountCents int64, sessionID uuid.UUID, idempotencyKey string) error
}
