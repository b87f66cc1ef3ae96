package notification

import (
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var customer = payment.Customer{Name: "Ada Lovelace", Email: "ada@example.com"}

func snap(method payment.Method, productType payment.ProductType) job.PaymentSnapshot {
	s := job.PaymentSnapshot{
		Reference:   "REF-1",
		Method:      method,
		ProductType: productType,
		AmountMinor: 50000,
		Currency:    "SEK",
		PaidAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if method == payment.MethodInvoice {
		s.Invoice = &payment.InvoiceDetails{Company: "Acme AB", Address: "Storgatan 1", City: "Stockholm"}
	}
	return s
}

func giftCardPayload() *job.GiftCardDelivery {
	return &job.GiftCardDelivery{
		Recipient:     customer,
		Payment:       snap(payment.MethodPush, payment.ProductGiftCard),
		GiftCardID:    uuid.New(),
		Code:          "7KQX-M2PA-R9HD",
		BalanceMinor:  30000,
		Currency:      "SEK",
		ExpiresAt:     time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		RecipientName: "Grace",
	}
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("Clay Studio")
	require.NoError(t, err)
	return r
}

func TestRender_AllTypes(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		name    string
		payload job.Payload
		subject string
		want    []string
	}{
		{
			name: "payment confirmation",
			payload: &job.PaymentConfirmation{
				Recipient:    customer,
				Payment:      snap(payment.MethodPush, payment.ProductCourse),
				ProductTitle: "Course booking",
			},
			subject: "Payment received REF-1",
			want:    []string{"Ada Lovelace", "500.00 SEK", "Course booking"},
		},
		{
			name: "booking confirmation",
			payload: &job.BookingConfirmation{
				Recipient:    customer,
				Payment:      snap(payment.MethodInvoice, payment.ProductCourse),
				BookingID:    uuid.New(),
				CourseTitle:  "Wheel throwing",
				Location:     "Studio 2",
				StartsAt:     time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC),
				Participants: 2,
			},
			subject: "Booking confirmed: Wheel throwing",
			want:    []string{"Wheel throwing", "Studio 2", "2026-04-02 18:00", "500.00 SEK"},
		},
		{
			name:    "gift card delivery",
			payload: giftCardPayload(),
			subject: "Your gift card",
			want:    []string{"7KQX-M2PA-R9HD", "300.00 SEK", "2027-03-01", "Grace"},
		},
		{
			name: "order confirmation",
			payload: &job.OrderConfirmation{
				Recipient:    customer,
				Payment:      snap(payment.MethodPush, payment.ProductArt),
				OrderID:      uuid.New(),
				ProductTitle: "Blue bowl",
				Artist:       "Studio Collective",
				Quantity:     1,
			},
			subject: "Order confirmed: Blue bowl",
			want:    []string{"Blue bowl", "Studio Collective", "500.00 SEK"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := r.Render(tt.payload.JobType(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Equal(t, customer, msg.To)
			for _, w := range tt.want {
				assert.Contains(t, msg.HTMLBody, w)
				assert.Contains(t, msg.TextBody, w)
			}
			assert.Contains(t, msg.HTMLBody, "Clay Studio")
			assert.Contains(t, msg.TextBody, "REF-1")
		})
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	r := newRenderer(t)
	p := giftCardPayload()
	p.RecipientName = "<script>alert(1)</script>"

	msg, err := r.Render(job.TypeGiftCardDelivery, p)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.TextBody, "<script>")
}

func TestRender_UnknownTypeFailsLoudly(t *testing.T) {
	r := newRenderer(t)
	_, err := r.Render(job.Type("sms_reminder"), giftCardPayload())
	assert.ErrorIs(t, err, domainErrors.ErrUnknownJobType)
}

func TestRender_PayloadMismatch(t *testing.T) {
	r := newRenderer(t)

	_, err := r.Render(job.TypeOrderConfirmation, giftCardPayload())
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPayload)

	_, err = r.Render(job.TypeGiftCardDelivery, nil)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPayload)

	broken := giftCardPayload()
	broken.Code = ""
	_, err = r.Render(job.TypeGiftCardDelivery, broken)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPayload)
}
