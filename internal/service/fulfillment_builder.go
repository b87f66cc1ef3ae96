package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// maxCodeAttempts bounds gift card code regeneration on collisions.
const maxCodeAttempts = 5

// Created is what building a fulfillment produces: the entity, the
// notification payload describing it, and whether a capacity ceiling was
// crossed on the way.
type Created struct {
	Fulfillment fulfillment.Fulfillment
	Payload     job.Payload
	Overdrawn   bool
}

// FulfillmentBuilder turns a PAID payment and its order details into the
// fulfillment variant matching the product type.
type FulfillmentBuilder struct {
	fulfillments     fulfillment.Repository
	capacity         fulfillment.CapacityRepository
	codes            fulfillment.CodeGenerator
	txManager        TransactionManager
	giftCardValidity time.Duration
	metrics          *observability.Metrics
	logger           zerolog.Logger
}

func NewFulfillmentBuilder(
	fulfillments fulfillment.Repository,
	capacity fulfillment.CapacityRepository,
	codes fulfillment.CodeGenerator,
	txManager TransactionManager,
	giftCardValidity time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *FulfillmentBuilder {
	if codes == nil {
		codes = fulfillment.NewRandomCodeGenerator()
	}
	return &FulfillmentBuilder{
		fulfillments:     fulfillments,
		capacity:         capacity,
		codes:            codes,
		txManager:        txManager,
		giftCardValidity: giftCardValidity,
		metrics:          metrics,
		logger:           observability.Component(logger, "fulfillment"),
	}
}

// Build creates the fulfillment entity and applies its capacity delta.
// Run it inside the caller's transaction.
func (b *FulfillmentBuilder) Build(ctx context.Context, p *payment.Payment, details payment.OrderDetails) (*Created, error) {
	switch p.ProductType {
	case payment.ProductCourse:
		return b.buildBooking(ctx, p, details)
	case payment.ProductGiftCard:
		return b.buildGiftCard(ctx, p, details)
	case payment.ProductArt:
		return b.buildOrder(ctx, p, details)
	default:
		return nil, domainErrors.ErrInvalidProductType
	}
}

func (b *FulfillmentBuilder) buildBooking(ctx context.Context, p *payment.Payment, details payment.OrderDetails) (*Created, error) {
	course, err := b.capacity.GetCourse(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	overbooked := course.WouldOverbook(details.Quantity)

	booking, err := fulfillment.NewBooking(p.ID, course.ID, details)
	if err != nil {
		return nil, err
	}
	if err := b.fulfillments.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	participants, err := b.capacity.AdjustParticipants(ctx, course.ID, booking.ReservedParticipants)
	if err != nil {
		return nil, fmt.Errorf("adjust participants: %w", err)
	}

	// Money has already moved, so a full course is reported, not refused.
	if overbooked || participants > course.MaxParticipants {
		overbooked = true
		b.metrics.CapacityOverdrawn.WithLabelValues(string(p.ProductType)).Inc()
		b.logger.Warn().
			Str("reference", p.Reference).
			Str("course_id", course.ID.String()).
			Int("participants", participants).
			Int("max_participants", course.MaxParticipants).
			Msg("course overbooked")
	}

	return &Created{
		Fulfillment: booking,
		Overdrawn:   overbooked,
		Payload: &job.BookingConfirmation{
			Recipient:    details.Customer,
			Payment:      job.NewPaymentSnapshot(p),
			BookingID:    booking.ID,
			CourseTitle:  course.Title,
			Location:     course.Location,
			StartsAt:     course.StartsAt,
			Participants: booking.Participants,
			Note:         booking.Note,
		},
	}, nil
}

func (b *FulfillmentBuilder) buildGiftCard(ctx context.Context, p *payment.Payment, details payment.OrderDetails) (*Created, error) {
	var card *fulfillment.GiftCard
	for attempt := 1; ; attempt++ {
		code, err := b.codes.Generate()
		if err != nil {
			return nil, err
		}
		card, err = fulfillment.NewGiftCard(p.ID, code, p.Amount, details, b.giftCardValidity)
		if err != nil {
			return nil, err
		}

		// A savepoint keeps the outer transaction usable after a unique violation.
		err = b.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			return b.fulfillments.CreateGiftCard(ctx, card)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domainErrors.ErrDuplicateCode) || attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("create gift card: %w", err)
		}
		b.logger.Debug().Int("attempt", attempt).Msg("gift card code collision, regenerating")
	}

	return &Created{
		Fulfillment: card,
		Payload: &job.GiftCardDelivery{
			Recipient:     details.Customer,
			Payment:       job.NewPaymentSnapshot(p),
			GiftCardID:    card.ID,
			Code:          card.Code,
			BalanceMinor:  card.Balance.Minor,
			Currency:      card.Balance.Currency,
			ExpiresAt:     card.ExpiresAt,
			RecipientName: card.Recipient,
		},
	}, nil
}

func (b *FulfillmentBuilder) buildOrder(ctx context.Context, p *payment.Payment, details payment.OrderDetails) (*Created, error) {
	product, err := b.capacity.GetProduct(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	oversold := product.WouldOversell(details.Quantity)

	order, err := fulfillment.NewOrder(p.ID, product.ID, details)
	if err != nil {
		return nil, err
	}
	if err := b.fulfillments.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	stock, err := b.capacity.AdjustStock(ctx, product.ID, -order.ReservedQuantity)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	if oversold || stock < 0 {
		oversold = true
		b.metrics.CapacityOverdrawn.WithLabelValues(string(p.ProductType)).Inc()
		b.logger.Warn().
			Str("reference", p.Reference).
			Str("product_id", product.ID.String()).
			Int("stock", stock).
			Msg("product oversold")
	}

	return &Created{
		Fulfillment: order,
		Overdrawn:   oversold,
		Payload: &job.OrderConfirmation{
			Recipient:    details.Customer,
			Payment:      job.NewPaymentSnapshot(p),
			OrderID:      order.ID,
			ProductTitle: product.Title,
			Artist:       product.Artist,
			Quantity:     order.Quantity,
			Note:         order.Note,
		},
	}, nil
}
