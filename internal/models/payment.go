package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment is the escrow contract backing a session. The Masumi blockchain
// identifier doubles as the primary key; the column is kept separately anyway
// so the key scheme can change without a migration of every foreign reference.
type Payment struct {
	ID                   string          `json:"id"`
	SessionID            uuid.UUID       `json:"session_id"`
	BlockchainIdentifier string          `json:"blockchain_identifier"`
	Funded               bool            `json:"funded"`
	FundedAt             *time.Time      `json:"funded_at,omitempty"`
	LastStatus           json.RawMessage `json:"last_status,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Release is one confirmed incremental escrow release. The (payment_id,
// idempotency_key) pair is unique; a replayed key returns this row instead of
// moving money again.
type Release struct {
	ID             uuid.UUID       `json:"id"`
	PaymentID      string          `json:"payment_id"`
	AmountCents    int64           `json:"amount_cents"`
	TxHash         *string         `json:"tx_hash,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	SubmitHash     string          `json:"submit_hash"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
