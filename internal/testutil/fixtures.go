package testutil

import (
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
)

const Currency = "SEK"

func NewTestCourse(maxParticipants, participants int, priceMinor int64) *fulfillment.Course {
	return &fulfillment.Course{
		ID:              uuid.New(),
		Title:           "Wheel throwing for beginners",
		Location:        "Studio 2",
		StartsAt:        time.Now().Add(14 * 24 * time.Hour).UTC(),
		MaxParticipants: maxParticipants,
		Participants:    participants,
		Price:           payment.Amount{Minor: priceMinor, Currency: Currency},
	}
}

func NewTestProduct(stock int, priceMinor int64) *fulfillment.Product {
	return &fulfillment.Product{
		ID:     uuid.New(),
		Title:  "Blue glazed bowl",
		Artist: "Studio Collective",
		Stock:  stock,
		Price:  payment.Amount{Minor: priceMinor, Currency: Currency},
	}
}

func NewTestOrderDetails(quantity int) payment.OrderDetails {
	return payment.OrderDetails{
		Customer: payment.Customer{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+46701234567"},
		Quantity: quantity,
	}
}

func NewTestInvoiceDetails() *payment.InvoiceDetails {
	return &payment.InvoiceDetails{
		Company:      "Acme AB",
		OrgNumber:    "556677-8899",
		Address:      "Storgatan 1",
		PostalCode:   "111 22",
		City:         "Stockholm",
		BillingEmail: "billing@acme.example",
	}
}

// NewTestPayment builds a CREATED payment without touching any store.
func NewTestPayment(method payment.Method, productType payment.ProductType, productID uuid.UUID, amountMinor int64) *payment.Payment {
	now := time.Now().UTC()
	p := &payment.Payment{
		ID:          uuid.New(),
		Reference:   "ref-" + uuid.NewString()[:8],
		Method:      method,
		ProductType: productType,
		ProductID:   productID,
		Amount:      payment.Amount{Minor: amountMinor, Currency: Currency},
		Status:      payment.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if method == payment.MethodInvoice {
		p.Metadata.Invoice = NewTestInvoiceDetails()
	}
	return p
}

// NewPaidPayment builds a PAID payment with no fulfillment linked.
func NewPaidPayment(method payment.Method, productType payment.ProductType, productID uuid.UUID, amountMinor int64) *payment.Payment {
	p := NewTestPayment(method, productType, productID, amountMinor)
	p.Status = payment.StatusPaid
	completedAt := time.Now().UTC()
	p.CompletedAt = &completedAt
	return p
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// NewTestJob builds a PENDING receipt job for a fresh push payment.
func NewTestJob(maxRetries int) *job.NotificationJob {
	p := NewPaidPayment(payment.MethodPush, payment.ProductArt, uuid.New(), 25000)
	j, err := job.New(p.ID, &job.PaymentConfirmation{
		Recipient:    NewTestOrderDetails(1).Customer,
		Payment:      job.NewPaymentSnapshot(p),
		ProductTitle: "Art purchase",
	}, maxRetries)
	if err != nil {
		panic(err)
	}
	return j
}
