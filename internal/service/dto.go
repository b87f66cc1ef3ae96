package service

import (
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
)

// SubmitOrderRequest is an order submission.
// Controllers convert their HTTP DTOs to this type.
type SubmitOrderRequest struct {
	// Reference is optional; IdempotencyKey is used next, then a generated one.
	Reference      string
	IdempotencyKey string
	Method         payment.Method
	ProductType    payment.ProductType
	ProductID      uuid.UUID
	AmountMinor    int64 // in minor units
	Currency       string
	Details        payment.OrderDetails
	PayerAlias     string
	Invoice        *payment.InvoiceDetails
}

// SubmitOrderResponse carries the payment and whether the reference had
// already been accepted.
type SubmitOrderResponse struct {
	Payment  *payment.Payment
	Replayed bool
}

// PaymentView is a payment with its audit trail.
type PaymentView struct {
	Payment *payment.Payment
	Events  []*payment.PaymentEvent
}

// BookingEdit is an operator change to a booking.
type BookingEdit struct {
	Participants int
	Note         *string
}

// CancelResult reports what a cancellation gave back to capacity.
type CancelResult struct {
	Released int
	// Remaining is the new participant count or stock level.
	Remaining int
}

// GiftCardView is the public part of a gift card.
type GiftCardView struct {
	Code      string
	Balance   payment.Amount
	ExpiresAt string
	Expired   bool
}

func newGiftCardView(g *fulfillment.GiftCard, expired bool) *GiftCardView {
	return &GiftCardView{
		Code:      g.Code,
		Balance:   g.Balance,
		ExpiresAt: g.ExpiresAt.Format("2006-01-02"),
		Expired:   expired,
	}
}
