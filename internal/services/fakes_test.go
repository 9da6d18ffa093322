package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parkpulse/backend/internal/apperrors"
	"github.com/parkpulse/backend/internal/config"
	"github.com/parkpulse/backend/internal/events"
	"github.com/parkpulse/backend/internal/masumi"
	"github.com/parkpulse/backend/internal/models"
)

// In-memory store fakes. They mirror the repository semantics closely enough
// for the services to be exercised without postgres: copy-on-read, guarded
// funded flip, unique (payment_id, idempotency_key).

type memSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[uuid.UUID]*models.Session)}
}

func (m *memSessions) put(s *models.Session) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.byID[s.ID] = &cp
	return s
}

func (m *memSessions) Create(_ context.Context, s *models.Session) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.put(s)
	return nil
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindOpenByVehicle(_ context.Context, vehicleID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Session
	for _, s := range m.byID {
		if s.VehicleID != vehicleID {
			continue
		}
		switch s.Status {
		case models.SessionStatusPending, models.SessionStatusAwaitingFunding, models.SessionStatusActive:
		default:
			continue
		}
		if found == nil || s.StartTS.After(found.StartTS) {
			found = s
		}
	}
	if found == nil {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *found
	return &cp, nil
}

func (m *memSessions) ListByStatus(_ context.Context, statuses ...string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		for _, status := range statuses {
			if s.Status == status {
				out = append(out, *s)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTS.Before(out[j].StartTS) })
	return out, nil
}

func (m *memSessions) ListEndedUnpaid(_ context.Context) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.Status == models.SessionStatusEnded && s.AccruedCents > s.ReleasedCents && s.PaymentID != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) UpdateAtomic(_ context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()
	m.byID[id] = &cp
	result := cp
	return &result, nil
}

type memEvents struct {
	mu       sync.Mutex
	appended []models.Event
}

func (m *memEvents) Append(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now().UTC()
	m.appended = append(m.appended, *ev)
	return nil
}

func (m *memEvents) ListByVehicle(_ context.Context, vehicleID string, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended)
}

type memPayments struct {
	mu       sync.Mutex
	byID     map[string]*models.Payment
	releases []models.Release
}

func newMemPayments() *memPayments {
	return &memPayments{byID: make(map[string]*models.Payment)}
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPayments) Get(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) ListUnfunded(_ context.Context) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.byID {
		if !p.Funded {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPayments) MarkFunded(_ context.Context, id string, lastStatus json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Funded {
		return false, nil
	}
	now := time.Now().UTC()
	p.Funded = true
	p.FundedAt = &now
	p.LastStatus = lastStatus
	return true, nil
}

func (m *memPayments) RecordStatus(_ context.Context, id string, lastStatus json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		p.LastStatus = lastStatus
	}
	return nil
}

func (m *memPayments) FindRelease(_ context.Context, paymentID, idempotencyKey string) (*models.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.releases {
		if m.releases[i].PaymentID == paymentID && m.releases[i].IdempotencyKey == idempotencyKey {
			cp := m.releases[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPayments) AppendRelease(_ context.Context, rel *models.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.releases {
		if m.releases[i].PaymentID == rel.PaymentID && m.releases[i].IdempotencyKey == rel.IdempotencyKey {
			return apperrors.Conflict("duplicate idempotency key")
		}
	}
	rel.ID = uuid.New()
	rel.CreatedAt = time.Now().UTC()
	m.releases = append(m.releases, *rel)
	return nil
}

func (m *memPayments) ListReleases(_ context.Context, paymentID string) ([]models.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Release
	for i := range m.releases {
		if m.releases[i].PaymentID == paymentID {
			out = append(out, m.releases[i])
		}
	}
	return out, nil
}

func (m *memPayments) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.releases)
}

// fakeNetwork stubs the Masumi payment service.
type fakeNetwork struct {
	mu           sync.Mutex
	createFn     func(masumi.CreatePaymentRequest) (*masumi.PaymentInfo, error)
	resolveFn    func(string) (*masumi.PaymentStatus, error)
	submitFn     func(string, string) (*masumi.SubmitResultResponse, error)
	createCalls  int
	resolveCalls int
	submitCalls  int
}

func (f *fakeNetwork) CreatePayment(_ context.Context, req masumi.CreatePaymentRequest) (*masumi.PaymentInfo, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.createFn(req)
}

func (f *fakeNetwork) ResolveStatus(_ context.Context, blockchainIdentifier string) (*masumi.PaymentStatus, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	return f.resolveFn(blockchainIdentifier)
}

func (f *fakeNetwork) SubmitResult(_ context.Context, blockchainIdentifier, submitHash string) (*masumi.SubmitResultResponse, error) {
	f.mu.Lock()
	f.submitCalls++
	f.mu.Unlock()
	return f.submitFn(blockchainIdentifier, submitHash)
}

type releaseCall struct {
	paymentID      string
	amountCents    int64
	sessionID      uuid.UUID
	idempotencyKey string
}

// fakeRequester records release requests made by the meter worker.
type fakeRequester struct {
	mu    sync.Mutex
	calls []releaseCall
	err   error
}

func (f *fakeRequester) RequestRelease(_ context.Context, paymentID string, amountCents int64, sessionID uuid.UUID, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, releaseCall{paymentID, amountCents, sessionID, idempotencyKey})
	return f.err
}

type recordedEvent struct {
	stream string
	event  events.Event
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, stream string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{stream: stream, event: event})
	return nil
}

func (p *recordingPublisher) countType(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, rec := range p.events {
		if rec.event.Type == eventType {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultRateCents:          10,
		DefaultEscrowDepositCents: 1000,
		ReleaseThresholdCents:     100,
		ReleaseBatchLimitCents:    1000,
	}
}
