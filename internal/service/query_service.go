package service

import (
	"context"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
)

// QueryService serves the public read endpoints.
type QueryService struct {
	payments     payment.Repository
	fulfillments fulfillment.Repository
}

func NewQueryService(payments payment.Repository, fulfillments fulfillment.Repository) *QueryService {
	return &QueryService{payments: payments, fulfillments: fulfillments}
}

// GetPayment returns a payment and its audit trail.
func (s *QueryService) GetPayment(ctx context.Context, reference string) (*PaymentView, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	events, err := s.payments.GetEvents(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentView{Payment: p, Events: events}, nil
}

// GetGiftCard looks a gift card up by its (case-insensitive) code.
func (s *QueryService) GetGiftCard(ctx context.Context, code string) (*GiftCardView, error) {
	g, err := s.fulfillments.GetGiftCardByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return newGiftCardView(g, g.IsExpired(time.Now())), nil
}
