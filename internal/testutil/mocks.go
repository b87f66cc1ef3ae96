package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/document"
	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/domain/staging"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Stored payments
// are copies, so callers see the same aliasing rules as with a database.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	byRef    map[string]uuid.UUID
	events   map[uuid.UUID][]*payment.PaymentEvent

	CreateFunc          func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc         func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByReferenceFunc  func(ctx context.Context, reference string) (*payment.Payment, error)
	UpdateStatusFunc    func(ctx context.Context, id uuid.UUID, status payment.Status) (*payment.Payment, error)
	UpdateMetadataFunc  func(ctx context.Context, id uuid.UUID, metadata payment.Metadata) error
	SetFulfillmentFunc  func(ctx context.Context, id, fulfillmentID uuid.UUID) error
	ListStaleFunc       func(ctx context.Context, method payment.Method, cutoff time.Time, limit int) ([]*payment.Payment, error)
	ListUnfulfilledFunc func(ctx context.Context, limit int) ([]*payment.Payment, error)
	AddEventFunc        func(ctx context.Context, event *payment.PaymentEvent) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		byRef:    make(map[string]uuid.UUID),
		events:   make(map[uuid.UUID][]*payment.PaymentEvent),
	}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	if p.FulfillmentID != nil {
		id := *p.FulfillmentID
		c.FulfillmentID = &id
	}
	return &c
}

// AddPayment seeds a payment, bypassing the duplicate check.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clonePayment(p)
	m.byRef[p.Reference] = p.ID
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[p.Reference]; ok {
		return domainErrors.ErrDuplicateReference
	}
	m.payments[p.ID] = clonePayment(p)
	m.byRef[p.Reference] = p.ID
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[reference]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(m.payments[id]), nil
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status payment.Status) (*payment.Payment, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	if err := p.TransitionTo(status); err != nil {
		return nil, err
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata payment.Metadata) error {
	if m.UpdateMetadataFunc != nil {
		return m.UpdateMetadataFunc(ctx, id, metadata)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	p.Metadata = metadata
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockPaymentRepository) SetFulfillment(ctx context.Context, id, fulfillmentID uuid.UUID) error {
	if m.SetFulfillmentFunc != nil {
		return m.SetFulfillmentFunc(ctx, id, fulfillmentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPaid {
		return domainErrors.ErrNotPaid
	}
	if p.FulfillmentID != nil {
		return domainErrors.ErrAlreadyFulfilled
	}
	p.FulfillmentID = &fulfillmentID
	return nil
}

func (m *MockPaymentRepository) ListStale(ctx context.Context, method payment.Method, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, method, cutoff, limit)
	}
	return m.filter(limit, func(p *payment.Payment) bool {
		return p.Status == payment.StatusCreated && p.Method == method && p.CreatedAt.Before(cutoff)
	}), nil
}

func (m *MockPaymentRepository) ListUnfulfilled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if m.ListUnfulfilledFunc != nil {
		return m.ListUnfulfilledFunc(ctx, limit)
	}
	return m.filter(limit, func(p *payment.Payment) bool {
		return p.Status == payment.StatusPaid && p.FulfillmentID == nil
	}), nil
}

func (m *MockPaymentRepository) filter(limit int, keep func(*payment.Payment) bool) []*payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	slices.SortFunc(out, func(a, b *payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockPaymentRepository) AddEvent(ctx context.Context, event *payment.PaymentEvent) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.PaymentID] = append(m.events[event.PaymentID], event)
	return nil
}

func (m *MockPaymentRepository) GetEvents(_ context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events[paymentID]), nil
}

// EventTypes lists the recorded event types for a payment in order.
func (m *MockPaymentRepository) EventTypes(paymentID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events[paymentID]))
	for _, e := range m.events[paymentID] {
		types = append(types, e.EventType)
	}
	return types
}

// --- Staging Repository Mock ---

type MockStagingRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*staging.PendingOrder

	StageFunc   func(ctx context.Context, order *staging.PendingOrder) error
	ConsumeFunc func(ctx context.Context, paymentID uuid.UUID) (*staging.PendingOrder, error)
	DeleteFunc  func(ctx context.Context, paymentID uuid.UUID) error
}

func NewMockStagingRepository() *MockStagingRepository {
	return &MockStagingRepository{orders: make(map[uuid.UUID]*staging.PendingOrder)}
}

func (m *MockStagingRepository) Stage(ctx context.Context, order *staging.PendingOrder) error {
	if m.StageFunc != nil {
		return m.StageFunc(ctx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.PaymentID]; ok {
		return domainErrors.ErrAlreadyStaged
	}
	m.orders[order.PaymentID] = order
	return nil
}

func (m *MockStagingRepository) Consume(ctx context.Context, paymentID uuid.UUID) (*staging.PendingOrder, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[paymentID]
	if !ok {
		return nil, domainErrors.ErrPendingOrderNotFound
	}
	delete(m.orders, paymentID)
	return o, nil
}

func (m *MockStagingRepository) Delete(ctx context.Context, paymentID uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, paymentID)
	return nil
}

// Has reports whether a pending order is staged for the payment.
func (m *MockStagingRepository) Has(paymentID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[paymentID]
	return ok
}

// --- Fulfillment Repository Mock ---

type MockFulfillmentRepository struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*fulfillment.Booking
	giftCards map[string]*fulfillment.GiftCard
	orders    map[uuid.UUID]*fulfillment.Order
	byPayment map[uuid.UUID]bool

	CreateBookingFunc  func(ctx context.Context, b *fulfillment.Booking) error
	CreateGiftCardFunc func(ctx context.Context, g *fulfillment.GiftCard) error
	CreateOrderFunc    func(ctx context.Context, o *fulfillment.Order) error
}

func NewMockFulfillmentRepository() *MockFulfillmentRepository {
	return &MockFulfillmentRepository{
		bookings:  make(map[uuid.UUID]*fulfillment.Booking),
		giftCards: make(map[string]*fulfillment.GiftCard),
		orders:    make(map[uuid.UUID]*fulfillment.Order),
		byPayment: make(map[uuid.UUID]bool),
	}
}

func (m *MockFulfillmentRepository) CreateBooking(ctx context.Context, b *fulfillment.Booking) error {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPayment[b.PaymentID] {
		return domainErrors.ErrAlreadyFulfilled
	}
	c := *b
	m.bookings[b.ID] = &c
	m.byPayment[b.PaymentID] = true
	return nil
}

func (m *MockFulfillmentRepository) GetBooking(_ context.Context, id uuid.UUID) (*fulfillment.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, domainErrors.ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (m *MockFulfillmentRepository) UpdateBooking(_ context.Context, b *fulfillment.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.bookings[b.ID]
	if !ok {
		return domainErrors.ErrBookingNotFound
	}
	if stored.Status != fulfillment.StatusConfirmed {
		return domainErrors.ErrAlreadyCancelled
	}
	stored.Participants = b.Participants
	stored.Note = b.Note
	stored.Status = b.Status
	stored.UpdatedAt = b.UpdatedAt
	stored.CancelledAt = b.CancelledAt
	return nil
}

func (m *MockFulfillmentRepository) CreateGiftCard(ctx context.Context, g *fulfillment.GiftCard) error {
	if m.CreateGiftCardFunc != nil {
		return m.CreateGiftCardFunc(ctx, g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	code := fulfillment.NormalizeCode(g.Code)
	if _, ok := m.giftCards[code]; ok {
		return domainErrors.ErrDuplicateCode
	}
	if m.byPayment[g.PaymentID] {
		return domainErrors.ErrAlreadyFulfilled
	}
	c := *g
	m.giftCards[code] = &c
	m.byPayment[g.PaymentID] = true
	return nil
}

func (m *MockFulfillmentRepository) GetGiftCardByCode(_ context.Context, code string) (*fulfillment.GiftCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.giftCards[fulfillment.NormalizeCode(code)]
	if !ok {
		return nil, domainErrors.ErrGiftCardNotFound
	}
	c := *g
	return &c, nil
}

func (m *MockFulfillmentRepository) CreateOrder(ctx context.Context, o *fulfillment.Order) error {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPayment[o.PaymentID] {
		return domainErrors.ErrAlreadyFulfilled
	}
	c := *o
	m.orders[o.ID] = &c
	m.byPayment[o.PaymentID] = true
	return nil
}

func (m *MockFulfillmentRepository) GetOrder(_ context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *MockFulfillmentRepository) UpdateOrder(_ context.Context, o *fulfillment.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	if stored.Status != fulfillment.StatusConfirmed {
		return domainErrors.ErrAlreadyCancelled
	}
	stored.Quantity = o.Quantity
	stored.Note = o.Note
	stored.Status = o.Status
	stored.UpdatedAt = o.UpdatedAt
	stored.CancelledAt = o.CancelledAt
	return nil
}

// Bookings returns every stored booking.
func (m *MockFulfillmentRepository) Bookings() []*fulfillment.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fulfillment.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		c := *b
		out = append(out, &c)
	}
	return out
}

// GiftCards returns every stored gift card.
func (m *MockFulfillmentRepository) GiftCards() []*fulfillment.GiftCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fulfillment.GiftCard, 0, len(m.giftCards))
	for _, g := range m.giftCards {
		c := *g
		out = append(out, &c)
	}
	return out
}

// Orders returns every stored art order.
func (m *MockFulfillmentRepository) Orders() []*fulfillment.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fulfillment.Order, 0, len(m.orders))
	for _, o := range m.orders {
		c := *o
		out = append(out, &c)
	}
	return out
}

// --- Capacity Repository Mock ---

type MockCapacityRepository struct {
	mu       sync.Mutex
	courses  map[uuid.UUID]*fulfillment.Course
	products map[uuid.UUID]*fulfillment.Product

	GetCourseFunc          func(ctx context.Context, id uuid.UUID) (*fulfillment.Course, error)
	AdjustParticipantsFunc func(ctx context.Context, courseID uuid.UUID, delta int) (int, error)
	GetProductFunc         func(ctx context.Context, id uuid.UUID) (*fulfillment.Product, error)
	AdjustStockFunc        func(ctx context.Context, productID uuid.UUID, delta int) (int, error)
}

func NewMockCapacityRepository() *MockCapacityRepository {
	return &MockCapacityRepository{
		courses:  make(map[uuid.UUID]*fulfillment.Course),
		products: make(map[uuid.UUID]*fulfillment.Product),
	}
}

func (m *MockCapacityRepository) AddCourse(c *fulfillment.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := *c
	m.courses[c.ID] = &cc
}

func (m *MockCapacityRepository) AddProduct(p *fulfillment.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc := *p
	m.products[p.ID] = &pc
}

func (m *MockCapacityRepository) GetCourse(ctx context.Context, id uuid.UUID) (*fulfillment.Course, error) {
	if m.GetCourseFunc != nil {
		return m.GetCourseFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, domainErrors.ErrCourseNotFound
	}
	cc := *c
	return &cc, nil
}

func (m *MockCapacityRepository) AdjustParticipants(ctx context.Context, courseID uuid.UUID, delta int) (int, error) {
	if m.AdjustParticipantsFunc != nil {
		return m.AdjustParticipantsFunc(ctx, courseID, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return 0, domainErrors.ErrCourseNotFound
	}
	c.Participants += delta
	return c.Participants, nil
}

func (m *MockCapacityRepository) GetProduct(ctx context.Context, id uuid.UUID) (*fulfillment.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domainErrors.ErrProductNotFound
	}
	pc := *p
	return &pc, nil
}

func (m *MockCapacityRepository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) (int, error) {
	if m.AdjustStockFunc != nil {
		return m.AdjustStockFunc(ctx, productID, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, domainErrors.ErrProductNotFound
	}
	p.Stock += delta
	return p.Stock, nil
}

// --- Job Repository Mock ---

// MockJobRepository is an in-memory queue that keeps the one-job-per-payment
// and lease rules of the real store.
type MockJobRepository struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*job.NotificationJob
	byPayment map[uuid.UUID]uuid.UUID

	EnqueueFunc    func(ctx context.Context, j *job.NotificationJob) error
	ClaimBatchFunc func(ctx context.Context, limit int, now time.Time) ([]*job.NotificationJob, error)
	FinishFunc     func(ctx context.Context, j *job.NotificationJob) error
	LockStaleFunc  func(ctx context.Context, cutoff time.Time, limit int) ([]*job.NotificationJob, error)
	StatsFunc      func(ctx context.Context) (map[job.Status]int, error)
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		jobs:      make(map[uuid.UUID]*job.NotificationJob),
		byPayment: make(map[uuid.UUID]uuid.UUID),
	}
}

func cloneJob(j *job.NotificationJob) *job.NotificationJob {
	c := *j
	if j.LockedAt != nil {
		t := *j.LockedAt
		c.LockedAt = &t
	}
	return &c
}

func (m *MockJobRepository) Enqueue(ctx context.Context, j *job.NotificationJob) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, j)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPayment[j.PaymentID]; ok {
		return domainErrors.ErrDuplicateJob
	}
	m.jobs[j.ID] = cloneJob(j)
	m.byPayment[j.PaymentID] = j.ID
	return nil
}

func (m *MockJobRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*job.NotificationJob, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, limit, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*job.NotificationJob
	for _, j := range m.jobs {
		if j.Status == job.StatusPending && !j.NextAttemptAt.After(now) {
			due = append(due, j)
		}
	}
	slices.SortFunc(due, func(a, b *job.NotificationJob) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*job.NotificationJob, 0, len(due))
	for _, j := range due {
		if err := j.Claim(now); err != nil {
			return nil, err
		}
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (m *MockJobRepository) Finish(ctx context.Context, j *job.NotificationJob) error {
	if m.FinishFunc != nil {
		return m.FinishFunc(ctx, j)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[j.ID]
	if !ok {
		return domainErrors.ErrJobNotFound
	}
	if stored.Status != job.StatusProcessing || stored.LockedAt == nil || !stored.LockedAt.Equal(j.LeasedAt) {
		return domainErrors.ErrJobNotClaimed
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *MockJobRepository) LockStale(ctx context.Context, cutoff time.Time, limit int) ([]*job.NotificationJob, error) {
	if m.LockStaleFunc != nil {
		return m.LockStaleFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.NotificationJob
	for _, j := range m.jobs {
		if j.Status == job.StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			out = append(out, cloneJob(j))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockJobRepository) Requeue(_ context.Context, j *job.NotificationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[j.ID]
	if !ok {
		return domainErrors.ErrJobNotFound
	}
	if stored.Status != job.StatusFailed {
		return domainErrors.ErrJobNotFailed
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *MockJobRepository) GetByID(_ context.Context, id uuid.UUID) (*job.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domainErrors.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (m *MockJobRepository) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*job.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPayment[paymentID]
	if !ok {
		return nil, domainErrors.ErrJobNotFound
	}
	return cloneJob(m.jobs[id]), nil
}

func (m *MockJobRepository) Stats(ctx context.Context) (map[job.Status]int, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[job.Status]int, len(job.Statuses))
	for _, s := range job.Statuses {
		stats[s] = 0
	}
	for _, j := range m.jobs {
		stats[j.Status]++
	}
	return stats, nil
}

func (m *MockJobRepository) Recent(_ context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.NotificationJob
	for _, j := range m.jobs {
		if status == nil || j.Status == *status {
			out = append(out, cloneJob(j))
		}
	}
	slices.SortFunc(out, func(a, b *job.NotificationJob) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores a job as-is, overwriting any previous copy.
func (m *MockJobRepository) Put(j *job.NotificationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = cloneJob(j)
	m.byPayment[j.PaymentID] = j.ID
}

// All returns every job.
func (m *MockJobRepository) All() []*job.NotificationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*job.NotificationJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, cloneJob(j))
	}
	return out
}

// --- Document Repository Mock ---

type MockDocumentRepository struct {
	mu   sync.Mutex
	docs map[string]*document.Document

	SaveFunc func(ctx context.Context, doc *document.Document) error
}

func NewMockDocumentRepository() *MockDocumentRepository {
	return &MockDocumentRepository{docs: make(map[string]*document.Document)}
}

func (m *MockDocumentRepository) Save(ctx context.Context, doc *document.Document) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.Key]; ok {
		return nil
	}
	c := *doc
	m.docs[doc.Key] = &c
	return nil
}

func (m *MockDocumentRepository) Get(_ context.Context, key string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	if !ok {
		return nil, domainErrors.ErrDocumentNotFound
	}
	c := *d
	return &c, nil
}

// Len returns the number of stored documents.
func (m *MockDocumentRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// MockPublisher records published document keys.
type MockPublisher struct {
	mu        sync.Mutex
	Published []string

	PublishFunc func(ctx context.Context, doc *document.Document) (string, error)
}

func (m *MockPublisher) Publish(ctx context.Context, doc *document.Document) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, doc.Key)
	return "https://cdn.example.com/" + doc.Key, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of service.TransactionManager.
// It runs fn directly; nothing is rolled back on error.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Gateway Mock ---

// MockGateway is a scriptable gateway.Gateway that records its calls.
type MockGateway struct {
	mu        sync.Mutex
	Initiated []gateway.InitiateRequest
	Cancelled []gateway.Handle

	InitiateFunc func(ctx context.Context, req gateway.InitiateRequest) (*gateway.Handle, error)
	StatusFunc   func(ctx context.Context, h gateway.Handle) (*gateway.CallbackEvent, error)
	CancelFunc   func(ctx context.Context, h gateway.Handle) error
}

func (m *MockGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Handle, error) {
	m.mu.Lock()
	m.Initiated = append(m.Initiated, req)
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return &gateway.Handle{RequestID: "req-" + req.Reference}, nil
}

func (m *MockGateway) Status(ctx context.Context, h gateway.Handle) (*gateway.CallbackEvent, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, h)
	}
	return &gateway.CallbackEvent{RequestID: h.RequestID, Status: "CREATED"}, nil
}

func (m *MockGateway) Cancel(ctx context.Context, h gateway.Handle) error {
	m.mu.Lock()
	m.Cancelled = append(m.Cancelled, h)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, h)
	}
	return nil
}

// --- Job Notifier Mock ---

// MockNotifier records job wakeups.
type MockNotifier struct {
	mu       sync.Mutex
	Notified []uuid.UUID

	NotifyJobsFunc func(ctx context.Context, ids ...uuid.UUID) error
}

func (m *MockNotifier) NotifyJobs(ctx context.Context, ids ...uuid.UUID) error {
	m.mu.Lock()
	m.Notified = append(m.Notified, ids...)
	m.mu.Unlock()
	if m.NotifyJobsFunc != nil {
		return m.NotifyJobsFunc(ctx, ids...)
	}
	return nil
}

// --- Locker Mock ---

// MockLocker grants every lock unless TryLockFunc says otherwise.
type MockLocker struct {
	mu       sync.Mutex
	Acquired []string

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	m.Acquired = append(m.Acquired, key)
	m.mu.Unlock()
	return func(context.Context) error { return nil }, true, nil
}
