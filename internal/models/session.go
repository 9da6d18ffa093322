package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionStatusPending         = "pending"
	SessionStatusAwaitingFunding = "awaiting_funding"
	SessionStatusActive          = "active"
	SessionStatusEnding          = "ending"
	SessionStatusEnded           = "ended"
)

// ValidSessionTransitions encodes the session lifecycle. An exit scan can land
// at any point before close, so every pre-ended status may move to ending.
var ValidSessionTransitions = map[string][]string{
	SessionStatusPending:         {SessionStatusAwaitingFunding, SessionStatusEnding},
	SessionStatusAwaitingFunding: {SessionStatusActive, SessionStatusEnding},
	SessionStatusActive:          {SessionStatusEnding},
	SessionStatusEnding:          {SessionStatusEnded},
	SessionStatusEnded:           {},
}

func IsValidTransition(from, to string) bool {
	for _, allowed := range ValidSessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Session is the billing ledger for one vehicle's stay. AccruedCents and
// ReleasedCents are cumulative counters; both only ever grow.
type Session struct {
	ID                   uuid.UUID  `json:"id"`
	VehicleID            string     `json:"vehicle_id"`
	SlotID               string     `json:"slot_id"`
	Status               string     `json:"status"`
	RatePerMinCents      int64      `json:"rate_per_min_cents"`
	AccruedCents         int64      `json:"accrued_cents"`
	ReleasedCents        int64      `json:"released_cents"`
	EscrowDepositCents   int64      `json:"escrow_deposit_cents"`
	PaymentID            *string    `json:"payment_id,omitempty"`
	StartTS              time.Time  `json:"start_ts"`
	EndTS                *time.Time `json:"end_ts,omitempty"`
	LastTickTS           *time.Time `json:"last_tick_ts,omitempty"`
	PercentEscrowUsed    float64    `json:"percent_escrow_used"`
	PercentPaidOfAccrued float64    `json:"percent_paid_of_accrued"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// UnpaidCents is the balance accrued but not yet released from escrow.
func (s *Session) UnpaidCents() int64 {
	return s.AccruedCents - s.ReleasedCents
}

// RecomputePercents refreshes the derived utilization figures. Zero
// denominators yield zero rather than NaN.
func (s *Session) RecomputePercents() {
	if s.EscrowDepositCents > 0 {
		s.PercentEscrowUsed = float64(s.ReleasedCents) / float64(s.EscrowDepositCents) * 100
	} else {
		s.PercentEscrowUsed = 0
	}
	if s.AccruedCents > 0 {
		s.PercentPaidOfAccrued = float64(s.ReleasedCents) / float64(s.AccruedCents) * 100
	} else {
		s.PercentPaidOfAccrued = 0
	}
}
