package service

import (
	"context"
	"testing"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_InvoiceCourseBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := testutil.NewTestCourse(10, 4, 25000)
	f.capacity.AddCourse(course)

	resp, err := f.checkout.Submit(ctx, SubmitOrderRequest{
		Reference:   "inv-1",
		Method:      payment.MethodInvoice,
		ProductType: payment.ProductCourse,
		ProductID:   course.ID,
		AmountMinor: 50000,
		Details:     testutil.NewTestOrderDetails(2),
		Invoice:     testutil.NewTestInvoiceDetails(),
	})
	require.NoError(t, err)
	assert.False(t, resp.Replayed)
	assert.Equal(t, payment.StatusPaid, resp.Payment.Status)
	require.NotNil(t, resp.Payment.FulfillmentID)

	bookings := f.fulfillments.Bookings()
	require.Len(t, bookings, 1)
	assert.Equal(t, 2, bookings[0].Participants)

	c, err := f.capacity.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Participants)

	jobs := f.jobs.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.TypeBookingConfirmation, jobs[0].Type)
	assert.Equal(t, job.StatusPending, jobs[0].Status)
	assert.Empty(t, f.gateway.Initiated, "invoices never touch the gateway")
}

func TestSubmit_PushGiftCardStagesAndInitiates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.checkout.Submit(ctx, SubmitOrderRequest{
		Reference:   "gc-1",
		Method:      payment.MethodPush,
		ProductType: payment.ProductGiftCard,
		AmountMinor: 30000,
		Details:     testutil.NewTestOrderDetails(3),
		PayerAlias:  "46701234567",
	})
	require.NoError(t, err)
	p := resp.Payment
	assert.Equal(t, payment.StatusCreated, p.Status)
	assert.True(t, f.staging.Has(p.ID))
	assert.Empty(t, f.fulfillments.GiftCards())
	assert.Empty(t, f.jobs.All())

	require.Len(t, f.gateway.Initiated, 1)
	req := f.gateway.Initiated[0]
	assert.Equal(t, "gc-1", req.Reference)
	assert.Equal(t, "46701234567", req.PayerAlias)
	assert.Equal(t, int64(30000), req.Amount.Minor)
	assert.NotEmpty(t, req.CallbackURL)

	stored, err := f.payments.GetByReference(ctx, "gc-1")
	require.NoError(t, err)
	assert.Equal(t, "req-gc-1", stored.Metadata.GatewayRequestID)
	assert.Equal(t, []string{payment.EventCreated, payment.EventGatewayInitiated}, f.payments.EventTypes(p.ID))

	// Gift cards are always a single card.
	result, err := f.reconciler.HandleCallback(ctx, callback(stored, "PAID"))
	require.NoError(t, err)
	assert.True(t, result.Fulfilled)
	assert.Len(t, f.fulfillments.GiftCards(), 1)
}

func TestSubmit_DuplicateReferenceReturnsCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := SubmitOrderRequest{
		Reference:   "dup-1",
		Method:      payment.MethodPush,
		ProductType: payment.ProductGiftCard,
		AmountMinor: 30000,
		Details:     testutil.NewTestOrderDetails(1),
	}

	first, err := f.checkout.Submit(ctx, req)
	require.NoError(t, err)
	_, err = f.reconciler.HandleCallback(ctx, callback(first.Payment, "PAID"))
	require.NoError(t, err)

	second, err := f.checkout.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, payment.StatusPaid, second.Payment.Status)
	assert.Len(t, f.gateway.Initiated, 1)
	assert.Len(t, f.fulfillments.GiftCards(), 1)
}

func TestSubmit_DuplicateInsertRaceIsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := testutil.NewTestPayment(payment.MethodPush, payment.ProductGiftCard, uuid.Nil, 30000)
	existing.Reference = "race-1"
	existing.Metadata.GatewayRequestID = "req-race-1"

	// The lookup misses, then the insert loses to a concurrent request.
	f.payments.GetByReferenceFunc = func(ctx context.Context, reference string) (*payment.Payment, error) {
		if f.payments.CreateFunc != nil {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return existing, nil
	}
	f.payments.CreateFunc = func(ctx context.Context, p *payment.Payment) error {
		f.payments.CreateFunc = nil
		return domainErrors.ErrDuplicateReference
	}

	resp, err := f.checkout.Submit(ctx, SubmitOrderRequest{
		Reference:   "race-1",
		Method:      payment.MethodPush,
		ProductType: payment.ProductGiftCard,
		AmountMinor: 30000,
		Details:     testutil.NewTestOrderDetails(1),
	})
	require.NoError(t, err)
	assert.True(t, resp.Replayed)
	assert.Equal(t, existing.ID, resp.Payment.ID)
	assert.Empty(t, f.gateway.Initiated)
}

func TestSubmit_GatewayErrorLeavesPaymentCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.InitiateFunc = func(ctx context.Context, req gateway.InitiateRequest) (*gateway.Handle, error) {
		return nil, domainErrors.NewGatewayError("initiate", 503, true, domainErrors.ErrGatewayUnavailable)
	}
	req := SubmitOrderRequest{
		Reference:   "gw-1",
		Method:      payment.MethodPush,
		ProductType: payment.ProductGiftCard,
		AmountMinor: 30000,
		Details:     testutil.NewTestOrderDetails(1),
	}

	resp, err := f.checkout.Submit(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	require.NotNil(t, resp)

	stored, err := f.payments.GetByReference(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCreated, stored.Status)
	assert.Empty(t, stored.Metadata.GatewayRequestID)

	// Resubmitting retries the initiation.
	f.gateway.InitiateFunc = nil
	resp, err = f.checkout.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Replayed)
	assert.Len(t, f.gateway.Initiated, 2)

	stored, err = f.payments.GetByReference(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, "req-gw-1", stored.Metadata.GatewayRequestID)
}

func TestSubmit_ReferenceFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := SubmitOrderRequest{
		IdempotencyKey: "idem-42",
		Method:         payment.MethodPush,
		ProductType:    payment.ProductGiftCard,
		AmountMinor:    30000,
		Details:        testutil.NewTestOrderDetails(1),
	}

	resp, err := f.checkout.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "idem-42", resp.Payment.Reference)

	req.IdempotencyKey = ""
	resp, err = f.checkout.Submit(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Payment.Reference)
	assert.NotEqual(t, "idem-42", resp.Payment.Reference)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	course := testutil.NewTestCourse(10, 0, 25000)
	f.capacity.AddCourse(course)

	base := func() SubmitOrderRequest {
		return SubmitOrderRequest{
			Method:      payment.MethodInvoice,
			ProductType: payment.ProductCourse,
			ProductID:   course.ID,
			AmountMinor: 25000,
			Details:     testutil.NewTestOrderDetails(1),
			Invoice:     testutil.NewTestInvoiceDetails(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *SubmitOrderRequest)
		wantErr error
	}{
		{"amount does not match price", func(r *SubmitOrderRequest) { r.AmountMinor = 100 }, domainErrors.ErrValidationFailed},
		{"unknown course", func(r *SubmitOrderRequest) { r.ProductID = uuid.New() }, domainErrors.ErrCourseNotFound},
		{"invoice without details", func(r *SubmitOrderRequest) { r.Invoice = nil }, domainErrors.ErrValidationFailed},
		{"missing customer email", func(r *SubmitOrderRequest) { r.Details.Customer.Email = "" }, domainErrors.ErrValidationFailed},
		{"zero quantity", func(r *SubmitOrderRequest) { r.Details.Quantity = 0 }, domainErrors.ErrValidationFailed},
		{"foreign currency", func(r *SubmitOrderRequest) { r.Currency = "EUR" }, domainErrors.ErrValidationFailed},
		{"bad method", func(r *SubmitOrderRequest) { r.Method = "cash" }, domainErrors.ErrInvalidMethod},
		{"bad product type", func(r *SubmitOrderRequest) { r.ProductType = "ticket" }, domainErrors.ErrInvalidProductType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			_, err := f.checkout.Submit(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.jobs.All(), "rejected orders create nothing")
}
