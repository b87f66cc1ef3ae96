package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
)

// Type selects the template and payload shape of a job.
type Type string

const (
	TypePaymentConfirmation Type = "payment_confirmation"
	TypeBookingConfirmation Type = "booking_confirmation"
	TypeGiftCardDelivery    Type = "gift_card_delivery"
	TypeOrderConfirmation   Type = "order_confirmation"
)

// Payload is the denormalized data a job needs to render and address its
// message without reading any other table.
type Payload interface {
	JobType() Type
	Validate() error
}

// PaymentSnapshot is the part of every payload that describes the payment.
type PaymentSnapshot struct {
	Reference   string                  `json:"reference"`
	Method      payment.Method          `json:"method"`
	ProductType payment.ProductType     `json:"product_type"`
	AmountMinor int64                   `json:"amount_minor"`
	Currency    string                  `json:"currency"`
	PaidAt      time.Time               `json:"paid_at"`
	Invoice     *payment.InvoiceDetails `json:"invoice,omitempty"`
}

// NewPaymentSnapshot copies what notifications show about a payment.
func NewPaymentSnapshot(p *payment.Payment) PaymentSnapshot {
	paidAt := p.UpdatedAt
	if p.CompletedAt != nil {
		paidAt = *p.CompletedAt
	}
	return PaymentSnapshot{
		Reference:   p.Reference,
		Method:      p.Method,
		ProductType: p.ProductType,
		AmountMinor: p.Amount.Minor,
		Currency:    p.Amount.Currency,
		PaidAt:      paidAt,
		Invoice:     p.Metadata.Invoice,
	}
}

// Amount returns the snapshot amount.
func (s PaymentSnapshot) Amount() payment.Amount {
	return payment.Amount{Minor: s.AmountMinor, Currency: s.Currency}
}

func (s PaymentSnapshot) validate() error {
	if s.Reference == "" {
		return errors.NewValidationError("payment.reference", "is required")
	}
	if s.AmountMinor <= 0 || s.Currency == "" {
		return errors.NewValidationError("payment.amount", "is required")
	}
	if s.Method == payment.MethodInvoice && s.Invoice == nil {
		return errors.NewValidationError("payment.invoice", "required for invoice payments")
	}
	return nil
}

// PaymentConfirmation is a plain receipt. It is sent when a payment is PAID
// but its fulfillment could not be created.
type PaymentConfirmation struct {
	Recipient    payment.Customer `json:"recipient"`
	Payment      PaymentSnapshot  `json:"payment"`
	ProductTitle string           `json:"product_title"`
}

func (p *PaymentConfirmation) JobType() Type { return TypePaymentConfirmation }

func (p *PaymentConfirmation) Validate() error {
	if err := p.Recipient.Validate(); err != nil {
		return err
	}
	return p.Payment.validate()
}

// BookingConfirmation confirms seats on a course.
type BookingConfirmation struct {
	Recipient    payment.Customer `json:"recipient"`
	Payment      PaymentSnapshot  `json:"payment"`
	BookingID    uuid.UUID        `json:"booking_id"`
	CourseTitle  string           `json:"course_title"`
	Location     string           `json:"location,omitempty"`
	StartsAt     time.Time        `json:"starts_at"`
	Participants int              `json:"participants"`
	Note         string           `json:"note,omitempty"`
}

func (p *BookingConfirmation) JobType() Type { return TypeBookingConfirmation }

func (p *BookingConfirmation) Validate() error {
	if err := p.Recipient.Validate(); err != nil {
		return err
	}
	if p.BookingID == uuid.Nil {
		return errors.NewValidationError("booking_id", "is required")
	}
	if p.CourseTitle == "" {
		return errors.NewValidationError("course_title", "is required")
	}
	if p.Participants <= 0 {
		return errors.NewValidationError("participants", "must be greater than 0")
	}
	return p.Payment.validate()
}

// GiftCardDelivery delivers a gift card code and voucher.
type GiftCardDelivery struct {
	Recipient     payment.Customer `json:"recipient"`
	Payment       PaymentSnapshot  `json:"payment"`
	GiftCardID    uuid.UUID        `json:"gift_card_id"`
	Code          string           `json:"code"`
	BalanceMinor  int64            `json:"balance_minor"`
	Currency      string           `json:"currency"`
	ExpiresAt     time.Time        `json:"expires_at"`
	RecipientName string           `json:"recipient_name,omitempty"`
}

func (p *GiftCardDelivery) JobType() Type { return TypeGiftCardDelivery }

func (p *GiftCardDelivery) Validate() error {
	if err := p.Recipient.Validate(); err != nil {
		return err
	}
	if p.GiftCardID == uuid.Nil {
		return errors.NewValidationError("gift_card_id", "is required")
	}
	if p.Code == "" {
		return errors.NewValidationError("code", "is required")
	}
	if p.BalanceMinor <= 0 {
		return errors.NewValidationError("balance_minor", "must be greater than 0")
	}
	if p.ExpiresAt.IsZero() {
		return errors.NewValidationError("expires_at", "is required")
	}
	return p.Payment.validate()
}

// Balance returns the gift card balance as an amount.
func (p *GiftCardDelivery) Balance() payment.Amount {
	return payment.Amount{Minor: p.BalanceMinor, Currency: p.Currency}
}

// OrderConfirmation confirms an art purchase.
type OrderConfirmation struct {
	Recipient    payment.Customer `json:"recipient"`
	Payment      PaymentSnapshot  `json:"payment"`
	OrderID      uuid.UUID        `json:"order_id"`
	ProductTitle string           `json:"product_title"`
	Artist       string           `json:"artist,omitempty"`
	Quantity     int              `json:"quantity"`
	Note         string           `json:"note,omitempty"`
}

func (p *OrderConfirmation) JobType() Type { return TypeOrderConfirmation }

func (p *OrderConfirmation) Validate() error {
	if err := p.Recipient.Validate(); err != nil {
		return err
	}
	if p.OrderID == uuid.Nil {
		return errors.NewValidationError("order_id", "is required")
	}
	if p.ProductTitle == "" {
		return errors.NewValidationError("product_title", "is required")
	}
	if p.Quantity <= 0 {
		return errors.NewValidationError("quantity", "must be greater than 0")
	}
	return p.Payment.validate()
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.JobType(), err)
	}
	return data, nil
}

// DecodePayload restores the typed payload for a stored job type.
func DecodePayload(t Type, data []byte) (Payload, error) {
	var p Payload
	switch t {
	case TypePaymentConfirmation:
		p = &PaymentConfirmation{}
	case TypeBookingConfirmation:
		p = &BookingConfirmation{}
	case TypeGiftCardDelivery:
		p = &GiftCardDelivery{}
	case TypeOrderConfirmation:
		p = &OrderConfirmation{}
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownJobType, t)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return p, nil
}
