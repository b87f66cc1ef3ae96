package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/cassiomorais/studiopay/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pushOrderBody = `{
	"method": "push",
	"product_type": "art_product",
	"product_id": "7b0f2e5c-3f0e-4a57-9c1d-0a4c9f1d2e3b",
	"amount": "250.00",
	"customer": {"name": "Ada Lovelace", "email": "ada@example.com"},
	"quantity": 1,
	"payer_alias": "46701234567"
}`

func giftCardLookup(_ context.Context, code string) (*service.GiftCardView, error) {
	return &service.GiftCardView{
		Code:      code,
		Balance:   payment.Amount{Minor: 30000, Currency: "SEK"},
		ExpiresAt: "2027-03-01",
	}, nil
}

func submitted(req service.SubmitOrderRequest) *payment.Payment {
	p := testutil.NewTestPayment(req.Method, req.ProductType, req.ProductID, req.AmountMinor)
	if req.Reference != "" {
		p.Reference = req.Reference
	}
	return p
}

func TestSubmitOrder_Created(t *testing.T) {
	s := newTestServer(t, nil)
	s.checkout.SubmitFunc = func(_ context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error) {
		return &service.SubmitOrderResponse{Payment: submitted(req)}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/orders", strings.NewReader(pushOrderBody), IdempotencyKeyHeader, "order-42")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp SubmitOrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Replayed)
	assert.Equal(t, "250.00", resp.Payment.Amount)
	assert.Equal(t, "created", resp.Payment.Status)

	assert.Equal(t, "order-42", s.checkout.last.IdempotencyKey)
	assert.Equal(t, int64(25000), s.checkout.last.AmountMinor)
	assert.Equal(t, "46701234567", s.checkout.last.PayerAlias)
}

func TestSubmitOrder_ReplayedReturnsOK(t *testing.T) {
	s := newTestServer(t, nil)
	s.checkout.SubmitFunc = func(_ context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error) {
		p := submitted(req)
		p.Status = payment.StatusPaid
		return &service.SubmitOrderResponse{Payment: p, Replayed: true}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/orders", strings.NewReader(pushOrderBody))
	require.Equal(t, http.StatusOK, w.Code)

	var resp SubmitOrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Replayed)
	assert.Equal(t, "paid", resp.Payment.Status)
}

func TestSubmitOrder_GatewayFailureKeepsPayment(t *testing.T) {
	s := newTestServer(t, nil)
	s.checkout.SubmitFunc = func(_ context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error) {
		p := submitted(req)
		p.Status = payment.StatusError
		return &service.SubmitOrderResponse{Payment: p},
			fmt.Errorf("initiate: %w", domainErrors.ErrGatewayUnavailable)
	}

	w := s.do(http.MethodPost, "/api/v1/orders", strings.NewReader(pushOrderBody))
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp SubmitOrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Payment)
	assert.Equal(t, "error", resp.Payment.Status)
	assert.Contains(t, resp.Error, "unavailable")
}

func TestSubmitOrder_Rejected(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "unknown method",
			body:           strings.Replace(pushOrderBody, `"push"`, `"cash"`, 1),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_error",
		},
		{
			name:           "fractional minor units",
			body:           strings.Replace(pushOrderBody, `"250.00"`, `"250.005"`, 1),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_error",
		},
		{
			name:           "negative amount",
			body:           strings.Replace(pushOrderBody, `"250.00"`, `"-1"`, 1),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_error",
		},
		{
			name:           "bad email",
			body:           strings.Replace(pushOrderBody, "ada@example.com", "ada", 1),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_error",
		},
		{
			name:           "unknown product",
			body:           pushOrderBody,
			serviceErr:     domainErrors.ErrProductNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "product_not_found",
		},
		{
			name:           "amount mismatch",
			body:           pushOrderBody,
			serviceErr:     fmt.Errorf("%w: expected 300.00 SEK", domainErrors.ErrInvalidAmount),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			called := false
			s.checkout.SubmitFunc = func(context.Context, service.SubmitOrderRequest) (*service.SubmitOrderResponse, error) {
				called = true
				return nil, tt.serviceErr
			}

			w := s.do(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body))
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedCode, resp.Code)
			assert.Equal(t, tt.serviceErr != nil, called)
		})
	}
}

func TestGetPayment(t *testing.T) {
	s := newTestServer(t, nil)
	p := testutil.NewPaidPayment(payment.MethodPush, payment.ProductCourse, uuid.New(), 50000)
	s.queries.GetPaymentFunc = func(_ context.Context, reference string) (*service.PaymentView, error) {
		if reference != p.Reference {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return &service.PaymentView{
			Payment: p,
			Events:  []*payment.PaymentEvent{payment.NewEvent(p.ID, payment.EventCreated, nil)},
		}, nil
	}

	w := s.do(http.MethodGet, "/api/v1/payments/"+p.Reference, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, p.Reference, resp.Reference)
	assert.Equal(t, "500.00", resp.Amount)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, payment.EventCreated, resp.Events[0].Type)

	w = s.do(http.MethodGet, "/api/v1/payments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetGiftCard(t *testing.T) {
	s := newTestServer(t, nil)
	s.queries.GetGiftCardFunc = func(ctx context.Context, code string) (*service.GiftCardView, error) {
		if code == "NOPE" {
			return nil, domainErrors.ErrGiftCardNotFound
		}
		return giftCardLookup(ctx, code)
	}

	w := s.do(http.MethodGet, "/api/v1/gift-cards/7KQX-M2PA-R9HD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":"7KQX-M2PA-R9HD","balance":"300.00","currency":"SEK","expires_at":"2027-03-01","expired":false}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/gift-cards/NOPE", nil).Code)
}
