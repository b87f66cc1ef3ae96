package fulfillment

import (
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
)

// Fulfillment is the business object a PAID payment materializes into.
// Exactly one of *Booking, *GiftCard or *Order.
type Fulfillment interface {
	FulfillmentID() uuid.UUID
	ProductType() payment.ProductType
}

// Status of a booking or art order.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is a seat reservation on a course.
type Booking struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	CourseID  uuid.UUID
	Customer  payment.Customer
	Note      string
	// Participants may be edited after creation.
	Participants int
	// ReservedParticipants is what was added to the course count at creation
	// and is what a cancellation gives back.
	ReservedParticipants int
	Status               Status
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CancelledAt          *time.Time
}

func (b *Booking) FulfillmentID() uuid.UUID         { return b.ID }
func (b *Booking) ProductType() payment.ProductType { return payment.ProductCourse }

// NewBooking creates a confirmed booking for the given order.
func NewBooking(paymentID, courseID uuid.UUID, details payment.OrderDetails) (*Booking, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Booking{
		ID:                   uuid.New(),
		PaymentID:            paymentID,
		CourseID:             courseID,
		Customer:             details.Customer,
		Note:                 details.Note,
		Participants:         details.Quantity,
		ReservedParticipants: details.Quantity,
		Status:               StatusConfirmed,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// EditParticipants changes the participant count on the booking only.
// Course capacity keeps the reserved amount.
func (b *Booking) EditParticipants(n int) error {
	if b.Status == StatusCancelled {
		return errors.ErrAlreadyCancelled
	}
	if n <= 0 {
		return errors.NewValidationError("participants", "must be greater than 0")
	}
	b.Participants = n
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel marks the booking cancelled and returns how many seats to release.
func (b *Booking) Cancel() (int, error) {
	if b.Status == StatusCancelled {
		return 0, errors.ErrAlreadyCancelled
	}
	now := time.Now().UTC()
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.UpdatedAt = now
	return b.ReservedParticipants, nil
}

// GiftCard is a redeemable balance.
type GiftCard struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	Code           string
	InitialBalance payment.Amount
	Balance        payment.Amount
	Purchaser      payment.Customer
	Recipient      string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

func (g *GiftCard) FulfillmentID() uuid.UUID         { return g.ID }
func (g *GiftCard) ProductType() payment.ProductType { return payment.ProductGiftCard }

// NewGiftCard creates a gift card whose balance equals the amount paid.
func NewGiftCard(paymentID uuid.UUID, code string, amount payment.Amount, details payment.OrderDetails, validity time.Duration) (*GiftCard, error) {
	if err := details.Customer.Validate(); err != nil {
		return nil, err
	}
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.NewValidationError("code", "is required")
	}
	now := time.Now().UTC()
	return &GiftCard{
		ID:             uuid.New(),
		PaymentID:      paymentID,
		Code:           code,
		InitialBalance: amount,
		Balance:        amount,
		Purchaser:      details.Customer,
		Recipient:      details.Note,
		ExpiresAt:      now.Add(validity),
		CreatedAt:      now,
	}, nil
}

// IsExpired reports whether the card can no longer be redeemed.
func (g *GiftCard) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Order is an art product purchase.
type Order struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	ProductID uuid.UUID
	Customer  payment.Customer
	Note      string
	Quantity  int
	// ReservedQuantity is what was taken from stock at creation.
	ReservedQuantity int
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CancelledAt      *time.Time
}

func (o *Order) FulfillmentID() uuid.UUID         { return o.ID }
func (o *Order) ProductType() payment.ProductType { return payment.ProductArt }

// NewOrder creates a confirmed art order.
func NewOrder(paymentID, productID uuid.UUID, details payment.OrderDetails) (*Order, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Order{
		ID:               uuid.New(),
		PaymentID:        paymentID,
		ProductID:        productID,
		Customer:         details.Customer,
		Note:             details.Note,
		Quantity:         details.Quantity,
		ReservedQuantity: details.Quantity,
		Status:           StatusConfirmed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Cancel marks the order cancelled and returns how many items go back to stock.
func (o *Order) Cancel() (int, error) {
	if o.Status == StatusCancelled {
		return 0, errors.ErrAlreadyCancelled
	}
	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return o.ReservedQuantity, nil
}

// Course is a scheduled course instance with a participant ceiling.
type Course struct {
	ID              uuid.UUID
	Title           string
	Location        string
	StartsAt        time.Time
	MaxParticipants int
	Participants    int
	Price           payment.Amount
}

// Remaining returns free seats. Negative when overbooked.
func (c *Course) Remaining() int {
	return c.MaxParticipants - c.Participants
}

// WouldOverbook reports whether adding n participants exceeds the ceiling.
func (c *Course) WouldOverbook(n int) bool {
	return c.Participants+n > c.MaxParticipants
}

// Product is an art piece with finite stock.
type Product struct {
	ID     uuid.UUID
	Title  string
	Artist string
	Stock  int
	Price  payment.Amount
}

// WouldOversell reports whether taking n items drives stock below zero.
func (p *Product) WouldOversell(n int) bool {
	return p.Stock-n < 0
}
