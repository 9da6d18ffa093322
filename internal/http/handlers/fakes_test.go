package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/masumi"
	"github.com/parkpulse/backend/internal/models"
)

// Minimal in-memory stores backing the real services under test.

type memEvents struct {
	appended []models.Event
}

func (m *memEvents) Append(_ context.Context, ev *models.Event) error {
	ev.ID = uuid.New()
	m.appended = append(m.appended, *ev)
	return nil
}

func (m *memEvents) ListByVehicle(_ context.Context, vehicleID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Event
	for i := len(m.appended) - 1; i >= 0 && len(out) < limit; i-- {
		if m.appended[i].VehicleID == vehicleID {
			out = append(out, m.appended[i])
		}
	}
	return out, nil
}

type memSessions struct {
	byID map[uuid.UUID]*models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[uuid.UUID]*models.Session)}
}

func (m *memSessions) Create(_ context.Context, s *models.Session) error {
	s.ID = uuid.New()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindOpenByVehicle(_ context.Context, vehicleID string) (*models.Session, error) {
	for _, s := range m.byID {
		if s.VehicleID != vehicleID {
			continue
		}
		switch s.Status {
		case models.SessionStatusPending, models.SessionStatusAwaitingFunding, models.SessionStatusActive:
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("session not found")
}

func (m *memSessions) ListByStatus(_ context.Context, statuses ...string) ([]models.Session, error) {
	return nil, nil
}

func (m *memSessions) ListEndedUnpaid(_ context.Context) ([]models.Session, error) {
	return nil, nil
}

func (m *memSessions) UpdateAtomic(_ context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.byID[id] = &cp
	result := cp
	return &result, nil
}

type memPayments struct {
	byID     map[string]*models.Payment
	releases []models.Release
}

func newMemPayments() *memPayments {
	return &memPayments{byID: make(map[string]*models.Payment)}
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPayments) Get(_ context.Context, id string) (*models.Payment, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) ListUnfunded(_ context.Context) ([]models.Payment, error) {
	return nil, nil
}

func (m *memPayments) MarkFunded(_ context.Context, id string, lastStatus json.RawMessage) (bool, error) {
	p, ok := m.byID[id]
	if !ok || p.Funded {
		return false, nil
	}
	now := time.Now().UTC()
	p.Funded = true
	p.FundedAt = &now
	return true, nil
}

func (m *memPayments) RecordStatus(_ context.Context, id string, lastStatus json.RawMessage) error {
	return nil
}

func (m *memPayments) FindRelease(_ context.Context, paymentID, idempotencyKey string) (*models.Release, error) {
	for i := range m.releases {
		if m.releases[i].PaymentID == paymentID && m.releases[i].IdempotencyKey == idempotencyKey {
			cp := m.releases[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPayments) AppendRelease(_ context.Context, rel *models.Release) error {
	rel.ID = uuid.New()
	m.releases = append(m.releases, *rel)
	return nil
}

func (m *memPayments) ListReleases(_ context.Context, paymentID string) ([]models.Release, error) {
	var out []models.Release
	for i := range m.releases {
		if m.releases[i].PaymentID == paymentID {
			out = append(out, m.releases[i])
		}
	}
	return out, nil
}

type stubNetwork struct{}

func (stubNetwork) CreatePayment(_ context.Context, _ masumi.CreatePaymentRequest) (*masumi.PaymentInfo, error) {
	return &masumi.PaymentInfo{BlockchainIdentifier: "bc-id-1", Raw: json.RawMessage(`{}`)}, nil
}

func (stubNetwork) ResolveStatus(_ context.Context, _ string) (*masumi.PaymentStatus, error) {
	return &masumi.PaymentStatus{OnChainState: "FundsLocked", Raw: json.RawMessage(`{}`)}, nil
}

func (stubNetwork) SubmitResult(_ context.Context, _, _ string) (*masumi.SubmitResultResponse, error) {
	return &masumi.SubmitResultResponse{TxHash: "0xabc", Raw: json.RawMessage(`{}`)}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultRateCents:          10,
		DefaultEscrowDepositCents: 1000,
		ReleaseThresholdCents:     100,
		ReleaseBatchLimitCents:    1000,
	}
}
