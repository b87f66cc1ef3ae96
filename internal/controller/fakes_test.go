package controller

import (
	"context"

	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/google/uuid"
)

type fakeCheckout struct {
	SubmitFunc func(ctx context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error)
	last       service.SubmitOrderRequest
}

func (f *fakeCheckout) Submit(ctx context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error) {
	f.last = req
	return f.SubmitFunc(ctx, req)
}

type fakeQueries struct {
	GetPaymentFunc  func(ctx context.Context, reference string) (*service.PaymentView, error)
	GetGiftCardFunc func(ctx context.Context, code string) (*service.GiftCardView, error)
}

func (f *fakeQueries) GetPayment(ctx context.Context, reference string) (*service.PaymentView, error) {
	return f.GetPaymentFunc(ctx, reference)
}

func (f *fakeQueries) GetGiftCard(ctx context.Context, code string) (*service.GiftCardView, error) {
	return f.GetGiftCardFunc(ctx, code)
}

type fakeReconciler struct {
	HandleCallbackFunc func(ctx context.Context, event gateway.CallbackEvent) (*service.ReconcileResult, error)
	events             []gateway.CallbackEvent
}

func (f *fakeReconciler) HandleCallback(ctx context.Context, event gateway.CallbackEvent) (*service.ReconcileResult, error) {
	f.events = append(f.events, event)
	return f.HandleCallbackFunc(ctx, event)
}

// fakeOperator fails loudly for any operation a test did not set up.
type fakeOperator struct {
	JobStatsFunc         func(ctx context.Context) (map[job.Status]int, error)
	RecentJobsFunc       func(ctx context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error)
	RequeueJobFunc       func(ctx context.Context, id uuid.UUID) (*job.NotificationJob, error)
	RetryFulfillmentFunc func(ctx context.Context, reference string) (*payment.Payment, error)
	ListUnfulfilledFunc  func(ctx context.Context, limit int) ([]*payment.Payment, error)
	CancelBookingFunc    func(ctx context.Context, id uuid.UUID) (*service.CancelResult, error)
	EditBookingFunc      func(ctx context.Context, id uuid.UUID, edit service.BookingEdit) (*fulfillment.Booking, error)
	CancelOrderFunc      func(ctx context.Context, id uuid.UUID) (*service.CancelResult, error)
}

func (f *fakeOperator) JobStats(ctx context.Context) (map[job.Status]int, error) {
	return f.JobStatsFunc(ctx)
}

func (f *fakeOperator) RecentJobs(ctx context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error) {
	return f.RecentJobsFunc(ctx, status, limit)
}

func (f *fakeOperator) RequeueJob(ctx context.Context, id uuid.UUID) (*job.NotificationJob, error) {
	return f.RequeueJobFunc(ctx, id)
}

func (f *fakeOperator) RetryFulfillment(ctx context.Context, reference string) (*payment.Payment, error) {
	return f.RetryFulfillmentFunc(ctx, reference)
}

func (f *fakeOperator) ListUnfulfilled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	return f.ListUnfulfilledFunc(ctx, limit)
}

func (f *fakeOperator) CancelBooking(ctx context.Context, id uuid.UUID) (*service.CancelResult, error) {
	return f.CancelBookingFunc(ctx, id)
}

func (f *fakeOperator) EditBooking(ctx context.Context, id uuid.UUID, edit service.BookingEdit) (*fulfillment.Booking, error) {
	return f.EditBookingFunc(ctx, id, edit)
}

func (f *fakeOperator) CancelOrder(ctx context.Context, id uuid.UUID) (*service.CancelResult, error) {
	return f.CancelOrderFunc(ctx, id)
}
