package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type fixture struct {
	payments     *testutil.MockPaymentRepository
	staging      *testutil.MockStagingRepository
	fulfillments *testutil.MockFulfillmentRepository
	capacity     *testutil.MockCapacityRepository
	jobs         *testutil.MockJobRepository
	tx           *testutil.MockTransactionManager
	gateway      *testutil.MockGateway
	notifier     *testutil.MockNotifier

	reconciler *ReconciliationService
	checkout   *CheckoutService
	operator   *OperatorService
	queries    *QueryService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCodes(t, nil)
}

func newFixtureWithCodes(t *testing.T, codes fulfillment.CodeGenerator) *fixture {
	t.Helper()
	f := &fixture{
		payments:     testutil.NewMockPaymentRepository(),
		staging:      testutil.NewMockStagingRepository(),
		fulfillments: testutil.NewMockFulfillmentRepository(),
		capacity:     testutil.NewMockCapacityRepository(),
		jobs:         testutil.NewMockJobRepository(),
		tx:           testutil.NewMockTransactionManager(),
		gateway:      &testutil.MockGateway{},
		notifier:     &testutil.MockNotifier{},
	}
	metrics := observability.NewNopMetrics()
	logger := zerolog.Nop()
	policy := job.DefaultRetryPolicy()

	builder := NewFulfillmentBuilder(f.fulfillments, f.capacity, codes, f.tx, 365*24*time.Hour, metrics, logger)
	f.reconciler = NewReconciliationService(f.payments, f.staging, f.jobs, builder, f.tx, f.notifier, policy, metrics, logger)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	f.checkout = NewCheckoutService(f.payments, f.staging, f.capacity, f.gateway, f.reconciler, f.tx, node,
		CheckoutConfig{Currency: testutil.Currency, CallbackURL: "https://shop.example.com/api/v1/callbacks/payments"},
		metrics, logger)
	f.operator = NewOperatorService(f.jobs, f.fulfillments, f.capacity, f.payments, f.reconciler, f.tx, f.notifier, policy, metrics, logger)
	f.queries = NewQueryService(f.payments, f.fulfillments)
	return f
}

// sequenceCodes hands out codes in order.
type sequenceCodes struct {
	codes []string
	next  int
}

func (s *sequenceCodes) Generate() (string, error) {
	c := s.codes[s.next%len(s.codes)]
	s.next++
	return c, nil
}

func jobTypes(jobs []*job.NotificationJob) []job.Type {
	types := make([]job.Type, 0, len(jobs))
	for _, j := range jobs {
		types = append(types, j.Type)
	}
	return types
}
