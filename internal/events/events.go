package events

import "context"

// Streams
const (
	StreamSession = "events:session"
	StreamPayment = "events:payment"
)

// Event types
const (
	EventSessionCreated   = "session_created"
	EventSessionActivated = "session_activated"
	EventSessionEnding    = "session_ending"
	EventSessionEnded     = "session_ended"
	EventPaymentCreated   = "payment_created"
	EventPaymentFunded    = "payment_funded"
	EventReleaseRecorded  = "release_recorded"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}
