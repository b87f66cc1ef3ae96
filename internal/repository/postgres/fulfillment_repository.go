package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FulfillmentRepository stores bookings, gift cards and art orders.
type FulfillmentRepository struct {
	pool *pgxpool.Pool
}

func NewFulfillmentRepository(pool *pgxpool.Pool) *FulfillmentRepository {
	return &FulfillmentRepository{pool: pool}
}

func (r *FulfillmentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// fulfillmentConflict maps a unique violation on one of the variant tables.
// payment_id uniqueness means the payment already has its entity.
func fulfillmentConflict(err error) error {
	if constraintOf(err) == "gift_cards_code_key" {
		return domainErrors.ErrDuplicateCode
	}
	return domainErrors.ErrAlreadyFulfilled
}

func (r *FulfillmentRepository) CreateBooking(ctx context.Context, b *fulfillment.Booking) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO bookings
		 (id, payment_id, course_id, customer_name, customer_email, customer_phone, note,
		  participants, reserved_participants, status, created_at, updated_at, cancelled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.PaymentID, b.CourseID, b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Note,
		b.Participants, b.ReservedParticipants, string(b.Status), b.CreatedAt, b.UpdatedAt, b.CancelledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fulfillmentConflict(err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) GetBooking(ctx context.Context, id uuid.UUID) (*fulfillment.Booking, error) {
	b := &fulfillment.Booking{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, payment_id, course_id, customer_name, customer_email, customer_phone, note,
		        participants, reserved_participants, status, created_at, updated_at, cancelled_at
		 FROM bookings WHERE id = $1`, id,
	).Scan(&b.ID, &b.PaymentID, &b.CourseID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.Note,
		&b.Participants, &b.ReservedParticipants, &status, &b.CreatedAt, &b.UpdatedAt, &b.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	b.Status = fulfillment.Status(status)
	return b, nil
}

// UpdateBooking never touches reserved_participants. Only confirmed rows
// are writable, so of two concurrent cancellations one fails with
// ErrAlreadyCancelled and capacity is released once.
func (r *FulfillmentRepository) UpdateBooking(ctx context.Context, b *fulfillment.Booking) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE bookings SET participants = $1, note = $2, status = $3, updated_at = $4, cancelled_at = $5
		 WHERE id = $6 AND status = 'confirmed'`,
		b.Participants, b.Note, string(b.Status), b.UpdatedAt, b.CancelledAt, b.ID)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetBooking(ctx, b.ID); err != nil {
			return err
		}
		return domainErrors.ErrAlreadyCancelled
	}
	return nil
}

func (r *FulfillmentRepository) CreateGiftCard(ctx context.Context, g *fulfillment.GiftCard) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO gift_cards
		 (id, payment_id, code, initial_balance_minor, balance_minor, currency,
		  purchaser_name, purchaser_email, purchaser_phone, recipient, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		g.ID, g.PaymentID, g.Code, g.InitialBalance.Minor, g.Balance.Minor, g.Balance.Currency,
		g.Purchaser.Name, g.Purchaser.Email, g.Purchaser.Phone, g.Recipient, g.ExpiresAt, g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fulfillmentConflict(err)
		}
		return fmt.Errorf("insert gift card: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) GetGiftCardByCode(ctx context.Context, code string) (*fulfillment.GiftCard, error) {
	g := &fulfillment.GiftCard{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, payment_id, code, initial_balance_minor, balance_minor, currency,
		        purchaser_name, purchaser_email, purchaser_phone, recipient, expires_at, created_at
		 FROM gift_cards WHERE code = $1`, fulfillment.NormalizeCode(code),
	).Scan(&g.ID, &g.PaymentID, &g.Code, &g.InitialBalance.Minor, &g.Balance.Minor, &g.Balance.Currency,
		&g.Purchaser.Name, &g.Purchaser.Email, &g.Purchaser.Phone, &g.Recipient, &g.ExpiresAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrGiftCardNotFound
		}
		return nil, fmt.Errorf("get gift card: %w", err)
	}
	g.InitialBalance.Currency = g.Balance.Currency
	return g, nil
}

func (r *FulfillmentRepository) CreateOrder(ctx context.Context, o *fulfillment.Order) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO orders
		 (id, payment_id, product_id, customer_name, customer_email, customer_phone, note,
		  quantity, reserved_quantity, status, created_at, updated_at, cancelled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.PaymentID, o.ProductID, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Note,
		o.Quantity, o.ReservedQuantity, string(o.Status), o.CreatedAt, o.UpdatedAt, o.CancelledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fulfillmentConflict(err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) GetOrder(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	o := &fulfillment.Order{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, payment_id, product_id, customer_name, customer_email, customer_phone, note,
		        quantity, reserved_quantity, status, created_at, updated_at, cancelled_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.PaymentID, &o.ProductID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Note,
		&o.Quantity, &o.ReservedQuantity, &status, &o.CreatedAt, &o.UpdatedAt, &o.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = fulfillment.Status(status)
	return o, nil
}

// UpdateOrder follows the same confirmed-only rule as UpdateBooking.
func (r *FulfillmentRepository) UpdateOrder(ctx context.Context, o *fulfillment.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET quantity = $1, note = $2, status = $3, updated_at = $4, cancelled_at = $5
		 WHERE id = $6 AND status = 'confirmed'`,
		o.Quantity, o.Note, string(o.Status), o.UpdatedAt, o.CancelledAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return domainErrors.ErrAlreadyCancelled
	}
	return nil
}
