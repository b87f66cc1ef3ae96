package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/go-chi/chi/v5"
)

// IdempotencyKeyHeader names the header used as payment reference when the
// body carries none.
const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutService interface {
	Submit(ctx context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResponse, error)
}

type QueryService interface {
	GetPayment(ctx context.Context, reference string) (*service.PaymentView, error)
	GetGiftCard(ctx context.Context, code string) (*service.GiftCardView, error)
}

type OrderController struct {
	checkout CheckoutService
	queries  QueryService
}

func NewOrderController(checkout CheckoutService, queries QueryService) *OrderController {
	return &OrderController{checkout: checkout, queries: queries}
}

// SubmitOrder answers 201 for a new payment and 200 when the reference was
// already accepted. A stored payment the gateway refused comes back as 502
// with the payment in the body.
func (c *OrderController) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	svcReq, err := req.toService(r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := c.checkout.Submit(r.Context(), svcReq)
	if err != nil {
		if resp == nil || resp.Payment == nil {
			writeError(w, err)
			return
		}
		status, _ := errorStatus(err)
		writeJSON(w, status, SubmitOrderResponse{
			Payment: FromPayment(resp.Payment),
			Error:   err.Error(),
		})
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, SubmitOrderResponse{
		Payment:  FromPayment(resp.Payment),
		Replayed: resp.Replayed,
	})
}

func (c *OrderController) GetPayment(w http.ResponseWriter, r *http.Request) {
	view, err := c.queries.GetPayment(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPaymentView(view))
}

func (c *OrderController) GetGiftCard(w http.ResponseWriter, r *http.Request) {
	card, err := c.queries.GetGiftCard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromGiftCard(card))
}
