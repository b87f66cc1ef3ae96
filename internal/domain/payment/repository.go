package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts a new payment. Returns ErrDuplicateReference if the
	// reference is taken.
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByReference retrieves a payment by its external reference
	GetByReference(ctx context.Context, reference string) (*Payment, error)

	// UpdateStatus moves a CREATED payment to newStatus in a single guarded
	// write. Returns ErrInvalidTransition when the payment is already terminal.
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus Status) (*Payment, error)

	// UpdateMetadata replaces the metadata bag.
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata Metadata) error

	// SetFulfillment links the fulfillment entity. Returns ErrAlreadyFulfilled
	// when one is already linked.
	SetFulfillment(ctx context.Context, id uuid.UUID, fulfillmentID uuid.UUID) error

	// ListStale lists CREATED payments of the given method created before cutoff.
	ListStale(ctx context.Context, method Method, cutoff time.Time, limit int) ([]*Payment, error)

	// ListUnfulfilled lists PAID payments that have no fulfillment entity.
	ListUnfulfilled(ctx context.Context, limit int) ([]*Payment, error)

	// AddEvent adds a payment event for audit trail
	AddEvent(ctx context.Context, event *PaymentEvent) error

	// GetEvents retrieves events for a payment
	GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*PaymentEvent, error)
}

// Event types recorded in the audit trail.
const (
	EventCreated            = "payment.created"
	EventGatewayInitiated   = "payment.gateway_initiated"
	EventStatusChanged      = "payment.status_changed"
	EventCallbackReplayed   = "payment.callback_replayed"
	EventFulfilled          = "payment.fulfilled"
	EventFulfillmentFailed  = "payment.fulfillment_failed"
	EventCancelRequested    = "payment.cancel_requested"
	EventNotificationQueued = "payment.notification_queued"
)

// PaymentEvent represents an event in the payment lifecycle
type PaymentEvent struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}

// NewEvent builds an audit event for a payment.
func NewEvent(paymentID uuid.UUID, eventType string, data map[string]any) *PaymentEvent {
	if data == nil {
		data = map[string]any{}
	}
	return &PaymentEvent{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		EventData: data,
		CreatedAt: time.Now().UTC(),
	}
}
