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

// CapacityRepository reads courses and products and applies seat and
// stock deltas in place.
type CapacityRepository struct {
	pool *pgxpool.Pool
}

func NewCapacityRepository(pool *pgxpool.Pool) *CapacityRepository {
	return &CapacityRepository{pool: pool}
}

func (r *CapacityRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *CapacityRepository) GetCourse(ctx context.Context, id uuid.UUID) (*fulfillment.Course, error) {
	c := &fulfillment.Course{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, title, location, starts_at, max_participants, participants, price_minor, currency
		 FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.Location, &c.StartsAt, &c.MaxParticipants, &c.Participants, &c.Price.Minor, &c.Price.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// AdjustParticipants adds delta to the course count without a read in
// between, so concurrent confirmations cannot lose an update.
func (r *CapacityRepository) AdjustParticipants(ctx context.Context, courseID uuid.UUID, delta int) (int, error) {
	var participants int
	err := r.db(ctx).QueryRow(ctx,
		`UPDATE courses SET participants = participants + $1 WHERE id = $2 RETURNING participants`,
		delta, courseID,
	).Scan(&participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domainErrors.ErrCourseNotFound
		}
		return 0, fmt.Errorf("adjust course participants: %w", err)
	}
	return participants, nil
}

func (r *CapacityRepository) GetProduct(ctx context.Context, id uuid.UUID) (*fulfillment.Product, error) {
	p := &fulfillment.Product{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, title, artist, stock, price_minor, currency FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Artist, &p.Stock, &p.Price.Minor, &p.Price.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *CapacityRepository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) (int, error) {
	var stock int
	err := r.db(ctx).QueryRow(ctx,
		`UPDATE products SET stock = stock + $1 WHERE id = $2 RETURNING stock`,
		delta, productID,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domainErrors.ErrProductNotFound
		}
		return 0, fmt.Errorf("adjust product stock: %w", err)
	}
	return stock, nil
}
