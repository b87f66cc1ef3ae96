package gateway

import (
	"context"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Gateway is the push-payment provider as the core sees it.
// Implementations never touch local payment state.
type Gateway interface {
	// Initiate asks the provider to push a payment request to the payer.
	Initiate(ctx context.Context, req InitiateRequest) (*Handle, error)
	// Status polls the provider for the current state of a request.
	Status(ctx context.Context, handle Handle) (*CallbackEvent, error)
	// Cancel withdraws a request that has not been answered yet.
	Cancel(ctx context.Context, handle Handle) error
}

type InitiateRequest struct {
	Reference   string
	PayerAlias  string
	Amount      payment.Amount
	Message     string
	CallbackURL string
}

// Handle identifies a payment request at the provider.
type Handle struct {
	RequestID string
	Location  string
}

// CallbackEvent is the provider's view of a payment request, delivered by
// callback or returned from a status poll.
type CallbackEvent struct {
	RequestID    string          `json:"id"`
	Reference    string          `json:"payeePaymentReference"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PayerAlias   string          `json:"payerAlias,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	DatePaid     *time.Time      `json:"datePaid,omitempty"`
}

// LocalStatus maps the provider status onto the payment state machine.
func (e CallbackEvent) LocalStatus() payment.Status {
	return payment.MapExternalStatus(e.Status)
}

// paymentRequest is the body of an initiate call.
type paymentRequest struct {
	PayeePaymentReference string `json:"payeePaymentReference"`
	CallbackURL           string `json:"callbackUrl"`
	PayerAlias            string `json:"payerAlias,omitempty"`
	PayeeAlias            string `json:"payeeAlias"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Message               string `json:"message,omitempty"`
}

func newPaymentRequest(req InitiateRequest, payeeAlias string) paymentRequest {
	return paymentRequest{
		PayeePaymentReference: req.Reference,
		CallbackURL:           req.CallbackURL,
		PayerAlias:            req.PayerAlias,
		PayeeAlias:            payeeAlias,
		Amount:                req.Amount.Decimal().StringFixed(2),
		Currency:              req.Amount.Currency,
		Message:               truncateMessage(req.Message),
	}
}

const maxMessageLength = 50

func truncateMessage(msg string) string {
	r := []rune(msg)
	if len(r) > maxMessageLength {
		return string(r[:maxMessageLength])
	}
	return msg
}

// New builds the configured gateway. The mock answers every request with a
// signed PAID callback so the full flow can run without the provider.
func New(cfg config.GatewayConfig, metrics *observability.Metrics, logger zerolog.Logger) Gateway {
	if cfg.Mock {
		return NewMockGateway(
			WithLogger(observability.Component(logger, "mock_gateway")),
			WithAutoConfirm("PAID", cfg.CallbackSecret),
		)
	}
	return NewHTTPClient(cfg, metrics, logger)
}
