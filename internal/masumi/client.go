package masumi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// On-chain states in which escrowed funds are locked (or past locking), i.e.
// the escrow counts as funded.
var fundedStates = map[string]struct{}{
	"FundsLocked":       {},
	"ResultSubmitted":   {},
	"RefundRequested":   {},
	"Disputed":          {},
	"Withdrawn":         {},
	"RefundWithdrawn":   {},
	"DisputedWithdrawn": {},
}

func IsFundedState(onChainState string) bool {
	_, ok := fundedStates[onChainState]
	return ok
}

// Escrow-creation deadlines, fixed offsets from now.
const (
	payByOffset         = 30 * time.Minute
	submitResultOffset  = 8 * time.Hour
	unlockOffset        = 12 * time.Hour
	disputeUnlockOffset = 24 * time.Hour
)

// Client talks to the Masumi payment service HTTP API.
type Client struct {
	baseURL         string
	apiKey          string
	network         string
	agentIdentifier string
	httpClient      *http.Client
	log             *zap.Logger
}

func NewClient(baseURL, apiKey, network, agentIdentifier string, log *zap.Logger) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		network:         network,
		agentIdentifier: agentIdentifier,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type CreatePaymentRequest struct {
	SessionID   uuid.UUID
	EscrowCents int64
	Metadata    map[string]string
}

// PaymentInfo is the subset of the escrow-creation response the pipeline
// stores and keys on.
type PaymentInfo struct {
	BlockchainIdentifier string          `json:"blockchainIdentifier"`
	Raw                  json.RawMessage `json:"-"`
}

type PaymentStatus struct {
	OnChainState string          `json:"onChainState"`
	Raw          json.RawMessage `json:"-"`
}

type SubmitResultResponse struct {
	TxHash string
	Raw    json.RawMessage
}

// CreatePayment submits an escrow-creation request. The escrow amount is
// converted to lovelace; deadlines are fixed offsets from now.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentInfo, error) {
	now := time.Now().UTC()

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, err
	}

	inputHash := sha256.Sum256([]byte(req.SessionID.String()))
	payload := map[string]any{
		"inputHash":                 hex.EncodeToString(inputHash[:]),
		"network":                   c.network,
		"agentIdentifier":           c.agentIdentifier,
		"identifierFromPurchaser":   purchaserIdentifier(),
		"payByTime":                 isoTime(now.Add(payByOffset)),
		"submitResultTime":          isoTime(now.Add(submitResultOffset)),
		"unlockTime":                isoTime(now.Add(unlockOffset)),
		"externalDisputeUnlockTime": isoTime(now.Add(disputeUnlockOffset)),
		"metadata":                  string(metadata),
	}
	if req.EscrowCents > 0 {
		payload["RequestedFunds"] = []map[string]string{
			{"amount": CentsToLovelace(req.EscrowCents), "unit": "lovelace"},
		}
	}

	raw, err := c.post(ctx, "/payment/", payload)
	if err != nil {
		return nil, err
	}

	var info PaymentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode create payment response: %w", err)
	}
	if info.BlockchainIdentifier == "" {
		return nil, fmt.Errorf("create payment response missing blockchainIdentifier")
	}
	info.Raw = raw
	return &info, nil
}

// ResolveStatus queries the escrow's current on-chain state.
func (c *Client) ResolveStatus(ctx context.Context, blockchainIdentifier string) (*PaymentStatus, error) {
	raw, err := c.post(ctx, "/payment/resolve-blockchain-identifier", map[string]any{
		"blockchainIdentifier": blockchainIdentifier,
		"network":              c.network,
		"includeHistory":       "false",
	})
	if err != nil {
		return nil, err
	}

	var status PaymentStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode payment status: %w", err)
	}
	status.Raw = raw
	return &status, nil
}

// SubmitResult authorizes a release by submitting the result hash.
func (c *Client) SubmitResult(ctx context.Context, blockchainIdentifier, submitHash string) (*SubmitResultResponse, error) {
	raw, err := c.post(ctx, "/payment/submit-result", map[string]any{
		"network":              c.network,
		"blockchainIdentifier": blockchainIdentifier,
		"submitResultHash":     submitHash,
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		CurrentTransaction struct {
			TxHash string `json:"txHash"`
		} `json:"CurrentTransaction"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode submit result response: %w", err)
	}
	return &SubmitResultResponse{TxHash: body.CurrentTransaction.TxHash, Raw: raw}, nil
}

// post sends a JSON request and returns the unwrapped `data` envelope.
func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("masumi unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("masumi returned %d: %s", resp.StatusCode, string(respBody))
	}

	return unwrapEnvelope(respBody), nil
}

// unwrapEnvelope strips the {"data": ...} wrapper the Masumi API puts around
// responses, passing through bodies without one.
func unwrapEnvelope(body []byte) json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return envelope.Data
	}
	return body
}

// CentsToLovelace converts cents to a lovelace string, treating 1 ADA as
// 100 cents.
func CentsToLovelace(amountCents int64) string {
	return fmt.Sprintf("%d", amountCents*10_000)
}

// ResultHash derives the deterministic hash submitted to authorize a release.
// Both sides of a retried call compute the same hash for the same inputs.
func ResultHash(sessionID, paymentID string, amountCents int64, idempotencyKey string) string {
	payload, _ := json.Marshal(map[string]any{
		"amount_cents":    amountCents,
		"idempotency_key": idempotencyKey,
		"payment_id":      paymentID,
		"session_id":      sessionID,
	})
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}

// purchaserIdentifier returns the 26-char identifier Masumi expects from the
// purchaser side.
func purchaserIdentifier() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:26]
}

func isoTime(t time.Time) string {
	return t.Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
}
