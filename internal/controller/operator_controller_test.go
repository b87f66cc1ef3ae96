package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/cassiomorais/studiopay/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListJobs(t *testing.T) {
	s := newTestServer(t, nil)
	var gotStatus *job.Status
	var gotLimit int
	s.operator.RecentJobsFunc = func(_ context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error) {
		gotStatus, gotLimit = status, limit
		return []*job.NotificationJob{testutil.NewTestJob(3)}, nil
	}

	w := s.do(http.MethodGet, "/admin/jobs?status=failed&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotStatus)
	assert.Equal(t, job.StatusFailed, *gotStatus)
	assert.Equal(t, 5, gotLimit)

	var resp []JobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, string(job.TypePaymentConfirmation), resp[0].Type)

	w = s.do(http.MethodGet, "/admin/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotStatus)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/jobs?status=lost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/jobs?limit=x", nil).Code)
}

func TestRequeueJob(t *testing.T) {
	s := newTestServer(t, nil)
	failed := testutil.NewTestJob(3)
	s.operator.RequeueJobFunc = func(_ context.Context, id uuid.UUID) (*job.NotificationJob, error) {
		switch id {
		case failed.ID:
			return failed, nil
		default:
			return nil, domainErrors.ErrJobNotFound
		}
	}

	w := s.do(http.MethodPost, "/admin/jobs/"+failed.ID.String()+"/requeue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, failed.ID.String(), resp.ID)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/admin/jobs/"+uuid.NewString()+"/requeue", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/jobs/123/requeue", nil).Code)
}

func TestRequeueJob_NotFailed(t *testing.T) {
	s := newTestServer(t, nil)
	s.operator.RequeueJobFunc = func(context.Context, uuid.UUID) (*job.NotificationJob, error) {
		return nil, domainErrors.ErrJobNotFailed
	}
	w := s.do(http.MethodPost, "/admin/jobs/"+uuid.NewString()+"/requeue", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRetryFulfillment(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"fulfilled", nil, http.StatusOK},
		{"not paid", domainErrors.ErrNotPaid, http.StatusConflict},
		{"already fulfilled", domainErrors.ErrAlreadyFulfilled, http.StatusConflict},
		{"still failing", domainErrors.ErrFulfillmentFailed, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.operator.RetryFulfillmentFunc = func(_ context.Context, reference string) (*payment.Payment, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				p := testutil.NewPaidPayment(payment.MethodPush, payment.ProductArt, uuid.New(), 25000)
				p.Reference = reference
				p.FulfillmentID = testutil.UUIDPtr(uuid.New())
				return p, nil
			}

			w := s.do(http.MethodPost, "/admin/payments/REF-9/fulfill", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestListUnfulfilled(t *testing.T) {
	s := newTestServer(t, nil)
	s.operator.ListUnfulfilledFunc = func(_ context.Context, limit int) ([]*payment.Payment, error) {
		assert.Equal(t, 10, limit)
		return []*payment.Payment{testutil.NewPaidPayment(payment.MethodInvoice, payment.ProductCourse, uuid.New(), 50000)}, nil
	}

	w := s.do(http.MethodGet, "/admin/payments/unfulfilled?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "invoice", resp[0].Method)
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t, nil)
	bookingID := uuid.New()
	s.operator.CancelBookingFunc = func(_ context.Context, id uuid.UUID) (*service.CancelResult, error) {
		if id != bookingID {
			return nil, domainErrors.ErrBookingNotFound
		}
		return &service.CancelResult{Released: 2, Remaining: 6}, nil
	}

	w := s.do(http.MethodPost, "/admin/bookings/"+bookingID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"released":2,"remaining":6}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/admin/bookings/"+uuid.NewString()+"/cancel", nil).Code)
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	s := newTestServer(t, nil)
	s.operator.CancelBookingFunc = func(context.Context, uuid.UUID) (*service.CancelResult, error) {
		return nil, domainErrors.ErrAlreadyCancelled
	}
	w := s.do(http.MethodPost, "/admin/bookings/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEditBooking(t *testing.T) {
	s := newTestServer(t, nil)
	bookingID := uuid.New()
	var got service.BookingEdit
	s.operator.EditBookingFunc = func(_ context.Context, id uuid.UUID, edit service.BookingEdit) (*fulfillment.Booking, error) {
		got = edit
		return &fulfillment.Booking{
			ID:                   id,
			PaymentID:            uuid.New(),
			CourseID:             uuid.New(),
			Participants:         edit.Participants,
			ReservedParticipants: 2,
			Note:                 *edit.Note,
			Status:               fulfillment.StatusConfirmed,
		}, nil
	}

	w := s.do(http.MethodPatch, "/admin/bookings/"+bookingID.String(),
		strings.NewReader(`{"participants":3,"note":"bringing a friend"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, got.Participants)
	require.NotNil(t, got.Note)
	assert.Equal(t, "bringing a friend", *got.Note)

	var resp BookingResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Participants)
	assert.Equal(t, 2, resp.ReservedParticipants)

	w = s.do(http.MethodPatch, "/admin/bookings/"+bookingID.String(), strings.NewReader(`{"participants":500}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t, nil)
	s.operator.CancelOrderFunc = func(context.Context, uuid.UUID) (*service.CancelResult, error) {
		return &service.CancelResult{Released: 1, Remaining: 4}, nil
	}
	w := s.do(http.MethodPost, "/admin/orders/"+uuid.NewString()+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"released":1,"remaining":4}`, w.Body.String())
}
