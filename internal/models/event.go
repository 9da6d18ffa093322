package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeEntry = "entry"
	EventTypeExit  = "exit"
)

// Event is one signed scanner observation, stored verbatim for audit before
// any session state changes.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	VehicleID  string          `json:"vehicle_id"`
	SlotID     string          `json:"slot_id"`
	ScannerID  string          `json:"scanner_id"`
	Signature  string          `json:"signature"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
