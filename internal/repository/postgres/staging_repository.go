package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/staging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StagingRepository implements staging.Repository on pending_orders.
type StagingRepository struct {
	pool *pgxpool.Pool
}

func NewStagingRepository(pool *pgxpool.Pool) *StagingRepository {
	return &StagingRepository{pool: pool}
}

func (r *StagingRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *StagingRepository) Stage(ctx context.Context, o *staging.PendingOrder) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO pending_orders
		 (payment_id, customer_name, customer_email, customer_phone, quantity, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.PaymentID, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Quantity, o.Note, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrAlreadyStaged
		}
		return fmt.Errorf("stage pending order: %w", err)
	}
	return nil
}

// Consume deletes the row and returns what it held. Two concurrent
// consumers cannot both see it.
func (r *StagingRepository) Consume(ctx context.Context, paymentID uuid.UUID) (*staging.PendingOrder, error) {
	o := &staging.PendingOrder{}
	err := r.db(ctx).QueryRow(ctx,
		`DELETE FROM pending_orders WHERE payment_id = $1
		 RETURNING payment_id, customer_name, customer_email, customer_phone, quantity, note, created_at`,
		paymentID,
	).Scan(&o.PaymentID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Quantity, &o.Note, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPendingOrderNotFound
		}
		return nil, fmt.Errorf("consume pending order: %w", err)
	}
	return o, nil
}

func (r *StagingRepository) Delete(ctx context.Context, paymentID uuid.UUID) error {
	if _, err := r.db(ctx).Exec(ctx, `DELETE FROM pending_orders WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("delete pending order: %w", err)
	}
	return nil
}
