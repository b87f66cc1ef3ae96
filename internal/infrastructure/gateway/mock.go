package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MockGateway simulates the provider for local development. With an
// auto-confirm status configured it posts a signed callback for every
// initiated request, just as the real provider would.
type MockGateway struct {
	latency     time.Duration
	failureRate float64
	timeoutRate float64
	confirmWith string
	signer      *Verifier
	httpClient  *http.Client
	logger      zerolog.Logger

	mu       sync.Mutex
	requests map[string]*CallbackEvent
}

var _ Gateway = (*MockGateway)(nil)

type MockOption func(*MockGateway)

func WithFailureRate(rate float64) MockOption {
	return func(g *MockGateway) { g.failureRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithTimeoutRate(rate float64) MockOption {
	return func(g *MockGateway) { g.timeoutRate = rate }
}

// WithAutoConfirm makes the mock call back with status after its latency,
// signing the body with secret.
func WithAutoConfirm(status, secret string) MockOption {
	return func(g *MockGateway) {
		g.confirmWith = status
		g.signer = NewVerifier(secret, false)
	}
}

func WithLogger(logger zerolog.Logger) MockOption {
	return func(g *MockGateway) { g.logger = logger }
}

func NewMockGateway(opts ...MockOption) *MockGateway {
	g := &MockGateway{
		latency:    100 * time.Millisecond,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     zerolog.Nop(),
		requests:   make(map[string]*CallbackEvent),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) Initiate(ctx context.Context, req InitiateRequest) (*Handle, error) {
	if err := g.simulate(ctx, opInitiate); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("mock_%s", uuid.New().String()[:8])
	event := &CallbackEvent{
		RequestID:  id,
		Reference:  req.Reference,
		Status:     "CREATED",
		Amount:     req.Amount.Decimal(),
		Currency:   req.Amount.Currency,
		PayerAlias: req.PayerAlias,
	}
	g.mu.Lock()
	g.requests[id] = event
	g.mu.Unlock()

	if g.confirmWith != "" && req.CallbackURL != "" {
		go g.callBack(req.CallbackURL, id)
	}
	return &Handle{RequestID: id, Location: "/v1/paymentrequests/" + id}, nil
}

func (g *MockGateway) Status(ctx context.Context, handle Handle) (*CallbackEvent, error) {
	if err := g.simulate(ctx, opStatus); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	event, ok := g.requests[handle.RequestID]
	if !ok {
		return nil, domainErrors.NewGatewayError(opStatus, http.StatusNotFound, false, domainErrors.ErrGatewayRejected)
	}
	copied := *event
	return &copied, nil
}

func (g *MockGateway) Cancel(ctx context.Context, handle Handle) error {
	if err := g.simulate(ctx, opCancel); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	event, ok := g.requests[handle.RequestID]
	if !ok {
		return domainErrors.NewGatewayError(opCancel, http.StatusNotFound, false, domainErrors.ErrGatewayRejected)
	}
	if event.Status != "CREATED" {
		return domainErrors.NewGatewayError(opCancel, http.StatusConflict, false, domainErrors.ErrGatewayRejected)
	}
	event.Status = "CANCELLED"
	return nil
}

func (g *MockGateway) simulate(ctx context.Context, op string) error {
	select {
	case <-time.After(g.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if rand.Float64() < g.timeoutRate {
		return domainErrors.NewGatewayError(op, 0, true, domainErrors.ErrGatewayTimeout)
	}
	if rand.Float64() < g.failureRate {
		return domainErrors.NewGatewayError(op, http.StatusServiceUnavailable, true, domainErrors.ErrGatewayUnavailable)
	}
	return nil
}

func (g *MockGateway) callBack(callbackURL, id string) {
	time.Sleep(g.latency)

	g.mu.Lock()
	event := g.requests[id]
	event.Status = g.confirmWith
	if event.LocalStatus() == payment.StatusPaid {
		now := time.Now().UTC()
		event.DatePaid = &now
	}
	body, err := json.Marshal(event)
	g.mu.Unlock()
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		g.logger.Error().Err(err).Msg("Mock gateway could not build callback")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, g.signer.Sign(body))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error().Err(err).Str("request_id", id).Msg("Mock gateway callback failed")
		return
	}
	resp.Body.Close()
	g.logger.Debug().Str("request_id", id).Int("status", resp.StatusCode).Msg("Mock gateway callback delivered")
}
