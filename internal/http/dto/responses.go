package dto

import "github.com/parkpulse/backend/internal/models"

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type ScanResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
}

type CreatePaymentResponse struct {
	OK                   bool   `json:"ok"`
	PaymentID            string `json:"payment_id"`
	BlockchainIdentifier string `json:"blockchain_identifier"`
}

type ReleaseResponse struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"tx_hash"`
}

type VehicleEventsResponse struct {
	OK     bool           `json:"ok"`
	Events []models.Event `json:"events"`
}

type PaymentReleasesResponse struct {
	OK        bool             `json:"ok"`
	PaymentID string           `json:"payment_id"`
	Funded    bool             `json:"funded"`
	Releases  []models.Release `json:"releases"`
}
