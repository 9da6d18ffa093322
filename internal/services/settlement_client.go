package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementClient calls the settlement agent's HTTP API from the meter
// worker.
type SettlementClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewSettlementClient(baseURL string, log *zap.Logger) *SettlementClient {
	return &SettlementClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

func (c *SettlementClient) RequestRelease(ctx context.Context, paymentID string, amountCents int64, sessionID uuid.UUID, idempotencyKey string) error {
	body, err := json.Marshal(map[string]any{
		"payment_id":      paymentID,
		"amount_cents":    amountCents,
		"session_id":      sessionID.String(),
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/release", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("settlement agent unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("settlement agent returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
