package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const paymentColumns = `id, reference, method, product_type, product_id, amount_minor, currency,
		        status, fulfillment_id, metadata, created_at, updated_at, completed_at`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (id, reference, method, product_type, product_id, amount_minor, currency,
		  status, fulfillment_id, metadata, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.Reference, string(p.Method), string(p.ProductType), p.ProductID, p.Amount.Minor, p.Amount.Currency,
		string(p.Status), p.FulfillmentID, metadata, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByReference retrieves a payment by its external reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

// UpdateStatus moves a CREATED payment to a terminal status. The WHERE
// clause is the guard: of two concurrent callbacks only one matches.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus payment.Status) (*payment.Payment, error) {
	if !newStatus.IsTerminal() {
		return nil, domainErrors.NewDomainError("invalid_transition",
			"cannot transition to "+string(newStatus), domainErrors.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	p, err := r.scanPayment(r.db(ctx).QueryRow(ctx,
		`UPDATE payments SET status = $1, updated_at = $2, completed_at = $2
		 WHERE id = $3 AND status = 'created'
		 RETURNING `+paymentColumns,
		string(newStatus), now, id))
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domainErrors.NewDomainError("invalid_transition",
			"cannot transition from "+string(current.Status)+" to "+string(newStatus),
			domainErrors.ErrInvalidTransition)
	}
	return p, err
}

// UpdateMetadata replaces the metadata bag.
func (r *PaymentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata payment.Metadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET metadata = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update payment metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// SetFulfillment links the fulfillment entity to a PAID payment that has none.
func (r *PaymentRepository) SetFulfillment(ctx context.Context, id uuid.UUID, fulfillmentID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET fulfillment_id = $1, updated_at = $2
		 WHERE id = $3 AND status = 'paid' AND fulfillment_id IS NULL`,
		fulfillmentID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set payment fulfillment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.FulfillmentID != nil {
		return domainErrors.ErrAlreadyFulfilled
	}
	return domainErrors.ErrNotPaid
}

// ListStale lists CREATED payments of method created before cutoff, oldest first.
func (r *PaymentRepository) ListStale(ctx context.Context, method payment.Method, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'created' AND method = $1 AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		string(method), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	return r.collect(rows)
}

// ListUnfulfilled lists PAID payments without a fulfillment entity.
func (r *PaymentRepository) ListUnfulfilled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'paid' AND fulfillment_id IS NULL
		 ORDER BY updated_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unfulfilled payments: %w", err)
	}
	return r.collect(rows)
}

// AddEvent appends to the payment audit trail.
func (r *PaymentRepository) AddEvent(ctx context.Context, event *payment.PaymentEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.PaymentID, event.EventType, data, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetEvents returns the audit trail of a payment, oldest first.
func (r *PaymentRepository) GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE payment_id = $1
		 ORDER BY created_at ASC, id ASC`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.PaymentEvent
	for rows.Next() {
		e := &payment.PaymentEvent{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.EventData); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PaymentRepository) collect(rows pgx.Rows) ([]*payment.Payment, error) {
	defer rows.Close()
	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) scanPayment(row scanner) (*payment.Payment, error) {
	var (
		p                           payment.Payment
		method, productType, status string
		metadata                    []byte
	)
	err := row.Scan(
		&p.ID, &p.Reference, &method, &productType, &p.ProductID, &p.Amount.Minor, &p.Amount.Currency,
		&status, &p.FulfillmentID, &metadata, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Method = payment.Method(method)
	p.ProductType = payment.ProductType(productType)
	p.Status = payment.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func constraintOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
