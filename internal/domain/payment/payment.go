package payment

import (
	"strings"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is how the customer pays.
type Method string

const (
	MethodPush    Method = "push"
	MethodInvoice Method = "invoice"
)

func (m Method) Valid() bool {
	return m == MethodPush || m == MethodInvoice
}

// ProductType selects which fulfillment entity a paid payment produces.
type ProductType string

const (
	ProductCourse   ProductType = "course"
	ProductGiftCard ProductType = "gift_card"
	ProductArt      ProductType = "art_product"
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductCourse, ProductGiftCard, ProductArt:
		return true
	}
	return false
}

// Status represents the payment status in the state machine
type Status string

const (
	StatusCreated  Status = "created"
	StatusPaid     Status = "paid"
	StatusDeclined Status = "declined"
	StatusError    Status = "error"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusDeclined || s == StatusError
}

// Amount is a positive sum in minor currency units.
type Amount struct {
	Minor    int64
	Currency string
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Minor, -2)
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	return a.Decimal().StringFixed(2) + " " + a.Currency
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.Minor <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// Customer is the contact a fulfillment and its notification are addressed to.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.NewValidationError("customer.name", "is required")
	}
	if !strings.Contains(c.Email, "@") {
		return errors.NewValidationError("customer.email", "must be a valid email address")
	}
	return nil
}

// OrderDetails is what the customer submitted alongside the payment.
type OrderDetails struct {
	Customer Customer `json:"customer"`
	Quantity int      `json:"quantity"`
	Note     string   `json:"note,omitempty"`
}

func (d OrderDetails) Validate() error {
	if err := d.Customer.Validate(); err != nil {
		return err
	}
	if d.Quantity <= 0 {
		return errors.NewValidationError("quantity", "must be greater than 0")
	}
	return nil
}

// InvoiceDetails is the billing address for invoice payments.
type InvoiceDetails struct {
	Company      string `json:"company"`
	OrgNumber    string `json:"org_number,omitempty"`
	Address      string `json:"address"`
	PostalCode   string `json:"postal_code,omitempty"`
	City         string `json:"city,omitempty"`
	BillingEmail string `json:"billing_email,omitempty"`
	YourRef      string `json:"your_reference,omitempty"`
}

func (d InvoiceDetails) Validate() error {
	if strings.TrimSpace(d.Company) == "" {
		return errors.NewValidationError("invoice_details.company", "is required")
	}
	if strings.TrimSpace(d.Address) == "" {
		return errors.NewValidationError("invoice_details.address", "is required")
	}
	return nil
}

// Metadata carries gateway correlation data and, for invoice payments, the
// order snapshot needed to retry fulfillment.
type Metadata struct {
	GatewayRequestID string          `json:"gateway_request_id,omitempty"`
	PayerAlias       string          `json:"payer_alias,omitempty"`
	ExternalStatus   string          `json:"external_status,omitempty"`
	ErrorCode        string          `json:"error_code,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Invoice          *InvoiceDetails `json:"invoice,omitempty"`
	Order            *OrderDetails   `json:"order,omitempty"`
}

// Payment represents a payment entity
type Payment struct {
	ID            uuid.UUID
	Reference     string
	Method        Method
	ProductType   ProductType
	ProductID     uuid.UUID
	Amount        Amount
	Status        Status
	FulfillmentID *uuid.UUID
	Metadata      Metadata
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewPayment creates a new payment in CREATED state.
func NewPayment(
	reference string,
	method Method,
	productType ProductType,
	productID uuid.UUID,
	amount Amount,
	metadata Metadata,
) (*Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, errors.NewValidationError("reference", "is required")
	}
	if len(reference) > 64 {
		return nil, errors.NewValidationError("reference", "must be at most 64 characters")
	}
	if !method.Valid() {
		return nil, errors.ErrInvalidMethod
	}
	if !productType.Valid() {
		return nil, errors.ErrInvalidProductType
	}
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if method == MethodInvoice && metadata.Invoice == nil {
		return nil, errors.NewValidationError("invoice_details", "required for invoice payments")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:          uuid.New(),
		Reference:   reference,
		Method:      method,
		ProductType: productType,
		ProductID:   productID,
		Amount:      amount,
		Status:      StatusCreated,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status.
// Only CREATED has outgoing edges.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	return p.Status == StatusCreated && newStatus.IsTerminal()
}

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidTransition,
		)
	}

	now := time.Now().UTC()
	p.Status = newStatus
	p.UpdatedAt = now
	p.CompletedAt = &now
	return nil
}

// MarkPaid transitions the payment to paid status
func (p *Payment) MarkPaid() error {
	return p.TransitionTo(StatusPaid)
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// IsFulfilled reports whether a fulfillment entity is linked.
func (p *Payment) IsFulfilled() bool {
	return p.FulfillmentID != nil
}

// OrderDetails returns the order snapshot kept on invoice payments.
func (p *Payment) OrderDetails() (OrderDetails, bool) {
	if p.Metadata.Order == nil {
		return OrderDetails{}, false
	}
	return *p.Metadata.Order, true
}

// MapExternalStatus translates a provider status into a local one.
// Non-final provider states map to CREATED. Anything unrecognised maps to
// ERROR so ambiguous input never lands on PAID.
func MapExternalStatus(external string) Status {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "PAID", "COMPLETED", "SUCCEEDED", "SUCCESS":
		return StatusPaid
	case "DECLINED", "CANCELLED", "CANCELED", "REJECTED", "EXPIRED", "TIMEOUT":
		return StatusDeclined
	case "CREATED", "PENDING", "INITIATED":
		return StatusCreated
	default:
		return StatusError
	}
}
