package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the fulfillment variants.
type Repository interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateBooking persists participants, status and timestamps.
	UpdateBooking(ctx context.Context, b *Booking) error

	// CreateGiftCard returns ErrDuplicateCode if the code is taken.
	CreateGiftCard(ctx context.Context, g *GiftCard) error
	GetGiftCardByCode(ctx context.Context, code string) (*GiftCard, error)

	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
}

// CapacityRepository reads and adjusts course seats and product stock.
// Adjust* apply the delta in a single statement and return the new value.
type CapacityRepository interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*Course, error)
	AdjustParticipants(ctx context.Context, courseID uuid.UUID, delta int) (int, error)

	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) (int, error)
}
