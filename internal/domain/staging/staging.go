package staging

import (
	"context"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
)

// PendingOrder holds what the customer submitted while a push payment is
// still CREATED. It is working memory and is removed once the payment
// settles either way.
type PendingOrder struct {
	PaymentID uuid.UUID
	payment.OrderDetails
	CreatedAt time.Time
}

// NewPendingOrder validates the order details and builds a staging row.
func NewPendingOrder(paymentID uuid.UUID, details payment.OrderDetails) (*PendingOrder, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	return &PendingOrder{
		PaymentID:    paymentID,
		OrderDetails: details,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Repository is the staging store. One row per payment.
type Repository interface {
	// Stage inserts the row. Returns ErrAlreadyStaged on a second call.
	Stage(ctx context.Context, order *PendingOrder) error

	// Consume reads and deletes the row in one statement.
	// Returns ErrPendingOrderNotFound if nothing is staged.
	Consume(ctx context.Context, paymentID uuid.UUID) (*PendingOrder, error)

	// Delete removes the row if present.
	Delete(ctx context.Context, paymentID uuid.UUID) error
}
