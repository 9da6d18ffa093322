package dto

type CreatePaymentRequest struct {
	SessionID string `json:"session_id"`
}

type ReleaseRequest struct {
	PaymentID      string `json:"payment_id"`
	AmountCents    int64  `json:"amount_cents"`
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key"`
}
