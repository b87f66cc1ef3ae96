//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/document"
	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/domain/staging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("studiopay"),
		tcpostgres.WithUsername("studiopay"),
		tcpostgres.WithPassword("studiopay"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, MigrateUp(url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedCourse(t *testing.T, pool *pgxpool.Pool, max int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO courses (id, title, location, starts_at, max_participants, participants, price_minor, currency)
		 VALUES ($1, 'Watercolour basics', 'Studio A', NOW() + INTERVAL '7 days', $2, 0, 25000, 'SEK')`, id, max)
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, title, artist, stock, price_minor, currency)
		 VALUES ($1, 'Harbour at dusk', 'E. Lind', $2, 120000, 'SEK')`, id, stock)
	require.NoError(t, err)
	return id
}

func newPayment(t *testing.T, productType payment.ProductType, productID uuid.UUID) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment("ref-"+uuid.NewString()[:8], payment.MethodPush, productType, productID,
		payment.Amount{Minor: 30000, Currency: "SEK"}, payment.Metadata{})
	require.NoError(t, err)
	return p
}

var details = payment.OrderDetails{
	Customer: payment.Customer{Name: "Ada", Email: "ada@example.com", Phone: "0701234567"},
	Quantity: 2,
	Note:     "For Grace",
}

func TestIntegration_PaymentLifecycle(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewPaymentRepository(pool)

	p := newPayment(t, payment.ProductGiftCard, uuid.New())
	require.NoError(t, repo.Create(ctx, p))
	assert.ErrorIs(t, repo.Create(ctx, p), domainErrors.ErrDuplicateReference)

	got, err := repo.GetByReference(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCreated, got.Status)

	updated, err := repo.UpdateStatus(ctx, p.ID, payment.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, updated.Status)
	assert.NotNil(t, updated.CompletedAt)

	_, err = repo.UpdateStatus(ctx, p.ID, payment.StatusDeclined)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidTransition)

	_, err = repo.GetByReference(ctx, "missing")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)

	fid := uuid.New()
	require.NoError(t, repo.SetFulfillment(ctx, p.ID, fid))
	assert.ErrorIs(t, repo.SetFulfillment(ctx, p.ID, uuid.New()), domainErrors.ErrAlreadyFulfilled)

	require.NoError(t, repo.AddEvent(ctx, payment.NewEvent(p.ID, payment.EventStatusChanged, map[string]any{"to": "paid"})))
	events, err := repo.GetEvents(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "paid", events[0].EventData["to"])
}

func TestIntegration_ConcurrentStatusUpdatesOnlyOneWins(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewPaymentRepository(pool)

	p := newPayment(t, payment.ProductCourse, uuid.New())
	require.NoError(t, repo.Create(ctx, p))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.UpdateStatus(ctx, p.ID, payment.StatusPaid); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestIntegration_StagingConsumeOnce(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	payments := NewPaymentRepository(pool)
	repo := NewStagingRepository(pool)

	p := newPayment(t, payment.ProductGiftCard, uuid.New())
	require.NoError(t, payments.Create(ctx, p))

	order, err := staging.NewPendingOrder(p.ID, details)
	require.NoError(t, err)
	require.NoError(t, repo.Stage(ctx, order))
	assert.ErrorIs(t, repo.Stage(ctx, order), domainErrors.ErrAlreadyStaged)

	got, err := repo.Consume(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, details, got.OrderDetails)

	_, err = repo.Consume(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPendingOrderNotFound)
	assert.NoError(t, repo.Delete(ctx, p.ID))
}

func TestIntegration_CapacityReversalUsesReservedQuantity(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	payments := NewPaymentRepository(pool)
	fulfillments := NewFulfillmentRepository(pool)
	capacity := NewCapacityRepository(pool)

	courseID := seedCourse(t, pool, 10)
	p := newPayment(t, payment.ProductCourse, courseID)
	require.NoError(t, payments.Create(ctx, p))

	booking, err := fulfillment.NewBooking(p.ID, courseID, details)
	require.NoError(t, err)
	require.NoError(t, fulfillments.CreateBooking(ctx, booking))
	n, err := capacity.AdjustParticipants(ctx, courseID, booking.ReservedParticipants)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, booking.EditParticipants(5))
	require.NoError(t, fulfillments.UpdateBooking(ctx, booking))

	stored, err := fulfillments.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Participants)
	assert.Equal(t, 2, stored.ReservedParticipants)

	released, err := stored.Cancel()
	require.NoError(t, err)
	n, err = capacity.AdjustParticipants(ctx, courseID, -released)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	other, err := fulfillment.NewBooking(p.ID, courseID, details)
	require.NoError(t, err)
	assert.ErrorIs(t, fulfillments.CreateBooking(ctx, other), domainErrors.ErrAlreadyFulfilled)
}

func TestIntegration_ConcurrentCapacityIncrements(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	capacity := NewCapacityRepository(pool)
	courseID := seedCourse(t, pool, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = capacity.AdjustParticipants(ctx, courseID, 1)
		}()
	}
	wg.Wait()

	course, err := capacity.GetCourse(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, 20, course.Participants)
}

func TestIntegration_GiftCardCodeUnique(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	payments := NewPaymentRepository(pool)
	repo := NewFulfillmentRepository(pool)

	p1 := newPayment(t, payment.ProductGiftCard, uuid.New())
	p2 := newPayment(t, payment.ProductGiftCard, uuid.New())
	require.NoError(t, payments.Create(ctx, p1))
	require.NoError(t, payments.Create(ctx, p2))

	g1, err := fulfillment.NewGiftCard(p1.ID, "ABCD-EFGH-JKMN", p1.Amount, details, 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.CreateGiftCard(ctx, g1))

	g2, err := fulfillment.NewGiftCard(p2.ID, "ABCD-EFGH-JKMN", p2.Amount, details, 24*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.CreateGiftCard(ctx, g2), domainErrors.ErrDuplicateCode)

	got, err := repo.GetGiftCardByCode(ctx, "abcd-efgh-jkmn ")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), got.Balance.Minor)
	assert.Equal(t, "SEK", got.InitialBalance.Currency)
}

func TestIntegration_StockAdjustment(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	capacity := NewCapacityRepository(pool)
	productID := seedProduct(t, pool, 1)

	stock, err := capacity.AdjustStock(ctx, productID, -2)
	require.NoError(t, err)
	assert.Equal(t, -1, stock)

	_, err = capacity.AdjustStock(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, domainErrors.ErrProductNotFound)
}

func enqueueJob(t *testing.T, pool *pgxpool.Pool, repo *JobRepository) *job.NotificationJob {
	t.Helper()
	ctx := context.Background()
	p := newPayment(t, payment.ProductGiftCard, uuid.New())
	require.NoError(t, NewPaymentRepository(pool).Create(ctx, p))

	j, err := job.New(p.ID, &job.PaymentConfirmation{
		Recipient: details.Customer,
		Payment: job.PaymentSnapshot{
			Reference: p.Reference, Method: p.Method, ProductType: p.ProductType,
			AmountMinor: p.Amount.Minor, Currency: p.Amount.Currency, PaidAt: time.Now(),
		},
		ProductTitle: "Gift card",
	}, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, j))
	return j
}

func TestIntegration_JobQueueLifecycle(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)

	j := enqueueJob(t, pool, repo)
	dup := *j
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Enqueue(ctx, &dup), domainErrors.ErrDuplicateJob)

	claimed, err := repo.ClaimBatch(ctx, 10, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, claimed[0].PayloadErr)
	assert.Equal(t, job.StatusProcessing, claimed[0].Status)

	again, err := repo.ClaimBatch(ctx, 10, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, again)

	policy := job.RetryPolicy{MaxRetries: 1, BaseBackoff: time.Millisecond}
	require.NoError(t, claimed[0].Fail(errors.New("smtp down"), time.Now(), policy))
	require.NoError(t, repo.Finish(ctx, claimed[0]))

	stored, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "smtp down", *stored.LastError)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[job.StatusPending])
	assert.Equal(t, 0, stats[job.StatusFailed])
}

func TestIntegration_ConcurrentClaimsAreDisjoint(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)
	for i := 0; i < 30; i++ {
		enqueueJob(t, pool, repo)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := repo.ClaimBatch(ctx, 4, time.Now().Add(time.Second))
				if err != nil || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, j := range batch {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 30)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func TestIntegration_ReapedLeaseRejectsLateFinish(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)
	tx := NewTxManager(pool)
	enqueueJob(t, pool, repo)

	claimed, err := repo.ClaimBatch(ctx, 1, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	late := claimed[0]

	policy := job.RetryPolicy{MaxRetries: 3, BaseBackoff: time.Millisecond}
	err = tx.WithTransaction(ctx, func(txCtx context.Context) error {
		stale, err := repo.LockStale(txCtx, time.Now().Add(time.Hour), 10)
		if err != nil {
			return err
		}
		require.Len(t, stale, 1)
		if err := stale[0].Fail(errors.New("lease expired"), time.Now(), policy); err != nil {
			return err
		}
		return repo.Finish(txCtx, stale[0])
	})
	require.NoError(t, err)

	reclaimed, err := repo.ClaimBatch(ctx, 1, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)

	require.NoError(t, late.Complete(time.Now()))
	assert.ErrorIs(t, repo.Finish(ctx, late), domainErrors.ErrJobNotClaimed)

	require.NoError(t, reclaimed[0].Complete(time.Now()))
	assert.NoError(t, repo.Finish(ctx, reclaimed[0]))
}

func TestIntegration_RequeueOnlyFromFailed(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)
	j := enqueueJob(t, pool, repo)

	stored, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Requeue(ctx, stored), domainErrors.ErrJobNotFailed)

	claimed, err := repo.ClaimBatch(ctx, 1, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, claimed[0].Abandon(errors.New("bad address"), time.Now()))
	require.NoError(t, repo.Finish(ctx, claimed[0]))

	failed, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, failed.Status)
	require.NoError(t, failed.Requeue(time.Now(), 3))
	require.NoError(t, repo.Requeue(ctx, failed))

	status := job.StatusPending
	recent, err := repo.Recent(ctx, &status, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 4, recent[0].MaxRetries)
}

func TestIntegration_Documents(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	doc := &document.Document{
		Key: document.Key("ref-1", document.KindInvoice), Name: "invoice-ref-1.html",
		ContentType: "text/html", Data: []byte("first"), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, doc))

	second := *doc
	second.Data = []byte("second")
	require.NoError(t, repo.Save(ctx, &second))

	got, err := repo.Get(ctx, doc.Key)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got.Data))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domainErrors.ErrDocumentNotFound)
}

func TestIntegration_NestedTransactionRollsBackInnerOnly(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	tx := NewTxManager(pool)
	payments := NewPaymentRepository(pool)

	outer := newPayment(t, payment.ProductGiftCard, uuid.New())
	inner := newPayment(t, payment.ProductGiftCard, uuid.New())
	errInner := errors.New("inner failed")

	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := payments.Create(txCtx, outer); err != nil {
			return err
		}
		innerErr := tx.WithTransaction(txCtx, func(innerCtx context.Context) error {
			if err := payments.Create(innerCtx, inner); err != nil {
				return err
			}
			return errInner
		})
		assert.ErrorIs(t, innerErr, errInner)
		return nil
	})
	require.NoError(t, err)

	_, err = payments.GetByID(ctx, outer.ID)
	assert.NoError(t, err)
	_, err = payments.GetByID(ctx, inner.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}
