package controller

import (
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (decimal money, string IDs, validation tags).
// Controllers convert them to service layer DTOs before calling business logic.

// SubmitOrderRequest is the body of POST /api/v1/orders.
type SubmitOrderRequest struct {
	Reference   string          `json:"reference,omitempty" validate:"omitempty,max=64,printascii"`
	Method      string          `json:"method" validate:"required,oneof=push invoice"`
	ProductType string          `json:"product_type" validate:"required,oneof=course gift_card art_product"`
	ProductID   string          `json:"product_id,omitempty" validate:"omitempty,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Customer    CustomerRequest `json:"customer"`
	Quantity    int             `json:"quantity" validate:"gte=0,lte=100"`
	Note        string          `json:"note,omitempty" validate:"max=500"`
	PayerAlias  string          `json:"payer_alias,omitempty" validate:"omitempty,max=20,numeric"`
	Invoice     *InvoiceRequest `json:"invoice,omitempty"`
}

type CustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type InvoiceRequest struct {
	Company      string `json:"company" validate:"required,max=200"`
	OrgNumber    string `json:"org_number,omitempty" validate:"max=32"`
	Address      string `json:"address" validate:"required,max=200"`
	PostalCode   string `json:"postal_code,omitempty" validate:"max=16"`
	City         string `json:"city,omitempty" validate:"max=100"`
	BillingEmail string `json:"billing_email,omitempty" validate:"omitempty,email"`
	YourRef      string `json:"your_reference,omitempty" validate:"max=100"`
}

// toService converts the request. idempotencyKey comes from the
// Idempotency-Key header.
func (r SubmitOrderRequest) toService(idempotencyKey string) (service.SubmitOrderRequest, error) {
	minor, err := toMinor(r.Amount)
	if err != nil {
		return service.SubmitOrderRequest{}, err
	}

	var productID uuid.UUID
	if r.ProductID != "" {
		productID = uuid.MustParse(r.ProductID)
	}

	req := service.SubmitOrderRequest{
		Reference:      r.Reference,
		IdempotencyKey: idempotencyKey,
		Method:         payment.Method(r.Method),
		ProductType:    payment.ProductType(r.ProductType),
		ProductID:      productID,
		AmountMinor:    minor,
		Currency:       r.Currency,
		Details: payment.OrderDetails{
			Customer: payment.Customer{Name: r.Customer.Name, Email: r.Customer.Email, Phone: r.Customer.Phone},
			Quantity: r.Quantity,
			Note:     r.Note,
		},
		PayerAlias: r.PayerAlias,
	}
	if r.Invoice != nil {
		req.Invoice = &payment.InvoiceDetails{
			Company:      r.Invoice.Company,
			OrgNumber:    r.Invoice.OrgNumber,
			Address:      r.Invoice.Address,
			PostalCode:   r.Invoice.PostalCode,
			City:         r.Invoice.City,
			BillingEmail: r.Invoice.BillingEmail,
			YourRef:      r.Invoice.YourRef,
		}
	}
	return req, nil
}

// toMinor converts a major-unit amount with at most two decimals.
func toMinor(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return 0, domainErrors.NewValidationError("amount", "must have at most two decimals")
	}
	if !minor.IsPositive() {
		return 0, domainErrors.NewValidationError("amount", "must be greater than 0")
	}
	return minor.IntPart(), nil
}

// EditBookingRequest is the body of PATCH /admin/bookings/{id}.
type EditBookingRequest struct {
	Participants int     `json:"participants" validate:"gte=0,lte=100"`
	Note         *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	Method           string          `json:"method"`
	ProductType      string          `json:"product_type"`
	ProductID        *string         `json:"product_id,omitempty"`
	Amount           string          `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	ExternalStatus   string          `json:"external_status,omitempty"`
	GatewayRequestID string          `json:"gateway_request_id,omitempty"`
	ErrorCode        string          `json:"error_code,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	FulfillmentID    *string         `json:"fulfillment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Events           []EventResponse `json:"events,omitempty"`
}

type EventResponse struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SubmitOrderResponse answers an order submission. Error is set when the
// payment was stored but the gateway could not be reached.
type SubmitOrderResponse struct {
	Payment  *PaymentResponse `json:"payment"`
	Replayed bool             `json:"replayed"`
	Error    string           `json:"error,omitempty"`
}

type GiftCardResponse struct {
	Code      string `json:"code"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	ExpiresAt string `json:"expires_at"`
	Expired   bool   `json:"expired"`
}

type CallbackResponse struct {
	Outcome string `json:"outcome"`
	Status  string `json:"status,omitempty"`
}

type JobResponse struct {
	ID            string     `json:"id"`
	PaymentID     string     `json:"payment_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxRetries    int        `json:"max_retries"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type BookingResponse struct {
	ID                   string `json:"id"`
	PaymentID            string `json:"payment_id"`
	CourseID             string `json:"course_id"`
	Participants         int    `json:"participants"`
	ReservedParticipants int    `json:"reserved_participants"`
	Note                 string `json:"note,omitempty"`
	Status               string `json:"status"`
}

type CancelResponse struct {
	Released  int `json:"released"`
	Remaining int `json:"remaining"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:               p.ID.String(),
		Reference:        p.Reference,
		Method:           string(p.Method),
		ProductType:      string(p.ProductType),
		Amount:           p.Amount.Decimal().StringFixed(2),
		Currency:         p.Amount.Currency,
		Status:           string(p.Status),
		ExternalStatus:   p.Metadata.ExternalStatus,
		GatewayRequestID: p.Metadata.GatewayRequestID,
		ErrorCode:        p.Metadata.ErrorCode,
		ErrorMessage:     p.Metadata.ErrorMessage,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CompletedAt:      p.CompletedAt,
	}
	if p.ProductID != uuid.Nil {
		pid := p.ProductID.String()
		resp.ProductID = &pid
	}
	if p.FulfillmentID != nil {
		fid := p.FulfillmentID.String()
		resp.FulfillmentID = &fid
	}
	return resp
}

func FromPaymentView(v *service.PaymentView) *PaymentResponse {
	resp := FromPayment(v.Payment)
	resp.Events = make([]EventResponse, 0, len(v.Events))
	for _, e := range v.Events {
		resp.Events = append(resp.Events, EventResponse{Type: e.EventType, Data: e.EventData, CreatedAt: e.CreatedAt})
	}
	return resp
}

func FromGiftCard(g *service.GiftCardView) *GiftCardResponse {
	return &GiftCardResponse{
		Code:      g.Code,
		Balance:   g.Balance.Decimal().StringFixed(2),
		Currency:  g.Balance.Currency,
		ExpiresAt: g.ExpiresAt,
		Expired:   g.Expired,
	}
}

func FromJob(j *job.NotificationJob) *JobResponse {
	return &JobResponse{
		ID:            j.ID.String(),
		PaymentID:     j.PaymentID.String(),
		Type:          string(j.Type),
		Status:        string(j.Status),
		Attempts:      j.Attempts,
		MaxRetries:    j.MaxRetries,
		NextAttemptAt: j.NextAttemptAt,
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		CompletedAt:   j.CompletedAt,
	}
}

func FromBooking(b *fulfillment.Booking) *BookingResponse {
	return &BookingResponse{
		ID:                   b.ID.String(),
		PaymentID:            b.PaymentID.String(),
		CourseID:             b.CourseID.String(),
		Participants:         b.Participants,
		ReservedParticipants: b.ReservedParticipants,
		Note:                 b.Note,
		Status:               string(b.Status),
	}
}
