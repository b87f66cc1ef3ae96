package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/internal/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDispatcher returns the scripted errors in order, then succeeds.
type scriptedDispatcher struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, _ *job.NotificationJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func (d *scriptedDispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		Workers:      1,
		BatchSize:    10,
		PollInterval: time.Hour,
		StaleAfter:   5 * time.Minute,
		ReapInterval: time.Hour,
	}
}

var testRetry = job.RetryPolicy{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}

func newTestWorker(jobs job.Repository, d Dispatcher, wakeups WakeupSource) (*JobWorker, *clock, *observability.Metrics) {
	metrics := observability.NewNopMetrics()
	w := NewJobWorker(jobs, d, testutil.NewMockTransactionManager(), wakeups, testRetry, testJobsConfig(), metrics, zerolog.Nop())
	c := &clock{t: time.Now().UTC().Add(time.Second)}
	w.now = c.now
	return w, c, metrics
}

func TestProcessBatch_FailsTwiceThenSucceeds(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	j := testutil.NewTestJob(3)
	jobs.Put(j)

	transient := domainErrors.NewTransportError(errors.New("connection refused"))
	d := &scriptedDispatcher{errs: []error{transient, transient}}
	w, c, metrics := newTestWorker(jobs, d, nil)
	ctx := context.Background()

	var lastNext time.Time
	for attempt := 1; attempt <= 2; attempt++ {
		n, err := w.ProcessBatch(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		stored, err := jobs.GetByID(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusPending, stored.Status)
		assert.Equal(t, attempt, stored.Attempts)
		assert.True(t, stored.NextAttemptAt.After(lastNext), "next attempt must move forward")
		require.NotNil(t, stored.LastError)
		assert.Contains(t, *stored.LastError, "connection refused")
		lastNext = stored.NextAttemptAt

		// Not due yet.
		n, err = w.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		c.t = stored.NextAttemptAt
	}

	n, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 3, d.Calls())

	typ := string(job.TypePaymentConfirmation)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(typ, "retry")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(typ, "completed")))
}

func TestProcessBatch_ExhaustedRetriesFail(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	j := testutil.NewTestJob(1)
	jobs.Put(j)

	fail := errors.New("smtp 451")
	w, c, _ := newTestWorker(jobs, &scriptedDispatcher{errs: []error{fail, fail, fail}}, nil)
	ctx := context.Background()

	_, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	c.add(time.Hour)
	_, err = w.ProcessBatch(ctx)
	require.NoError(t, err)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempts)

	c.add(time.Hour)
	n, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed jobs are never claimed again")
}

func TestProcessBatch_PermanentErrorSkipsRetries(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	j := testutil.NewTestJob(3)
	jobs.Put(j)

	w, _, metrics := newTestWorker(jobs, &scriptedDispatcher{errs: []error{domainErrors.ErrUnknownJobType}}, nil)

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	stored, err := jobs.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(
		metrics.JobsProcessed.WithLabelValues(string(job.TypePaymentConfirmation), "abandoned")))
}

func TestProcessBatch_LostLeaseIsNotAnError(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	jobs.Put(testutil.NewTestJob(3))
	jobs.FinishFunc = func(context.Context, *job.NotificationJob) error {
		return domainErrors.ErrJobNotClaimed
	}

	w, _, metrics := newTestWorker(jobs, &scriptedDispatcher{}, nil)

	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, promtestutil.ToFloat64(
		metrics.JobsProcessed.WithLabelValues(string(job.TypePaymentConfirmation), "completed")))
}

func TestProcessBatch_UnclaimedJobIsNotFinished(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	pending := testutil.NewTestJob(3)
	jobs.ClaimBatchFunc = func(context.Context, int, time.Time) ([]*job.NotificationJob, error) {
		return []*job.NotificationJob{pending}, nil
	}
	finished := false
	jobs.FinishFunc = func(context.Context, *job.NotificationJob) error {
		finished = true
		return nil
	}

	w, _, metrics := newTestWorker(jobs, &scriptedDispatcher{}, nil)

	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, finished)
	assert.Equal(t, job.StatusPending, pending.Status)
	assert.Zero(t, promtestutil.ToFloat64(
		metrics.JobsProcessed.WithLabelValues(string(job.TypePaymentConfirmation), "completed")))
}

func TestProcessBatch_ClaimError(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	jobs.ClaimBatchFunc = func(context.Context, int, time.Time) ([]*job.NotificationJob, error) {
		return nil, errors.New("db down")
	}
	w, _, _ := newTestWorker(jobs, &scriptedDispatcher{}, nil)

	_, err := w.ProcessBatch(context.Background())
	assert.Error(t, err)
}

func TestReapStale_ReclaimsAbandonedLeases(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	w, c, metrics := newTestWorker(jobs, &scriptedDispatcher{}, nil)
	ctx := context.Background()

	stale := testutil.NewTestJob(3)
	require.NoError(t, stale.Claim(c.t.Add(-10*time.Minute)))
	jobs.Put(stale)

	fresh := testutil.NewTestJob(3)
	require.NoError(t, fresh.Claim(c.t.Add(-time.Minute)))
	jobs.Put(fresh)

	n, err := w.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.JobsReclaimed))

	got, err := jobs.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.LockedAt)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "lease expired")

	got, err = jobs.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, got.Status)

	// The reclaimed job is picked up again once its backoff passes.
	c.add(time.Minute)
	claimed, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
}

func TestRefreshQueueDepth(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	jobs.Put(testutil.NewTestJob(3))
	jobs.Put(testutil.NewTestJob(3))
	w, _, metrics := newTestWorker(jobs, &scriptedDispatcher{}, nil)

	w.RefreshQueueDepth(context.Background())

	assert.Equal(t, 2.0, promtestutil.ToFloat64(metrics.JobQueueDepth.WithLabelValues("pending")))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(metrics.JobQueueDepth.WithLabelValues("failed")))
}

// chanWakeups hands out one wake-up per value sent on ch.
type chanWakeups struct{ ch chan int }

func (c chanWakeups) Next(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case n := <-c.ch:
		return n, nil
	}
}

func TestRun_WakeupTriggersPollBeforeInterval(t *testing.T) {
	jobs := testutil.NewMockJobRepository()
	wakeups := chanWakeups{ch: make(chan int, 1)}
	d := &scriptedDispatcher{}
	w, _, _ := newTestWorker(jobs, d, wakeups)
	w.now = func() time.Time { return time.Now().UTC().Add(time.Second) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	j := testutil.NewTestJob(3)
	jobs.Put(j)
	wakeups.ch <- 1

	assert.Eventually(t, func() bool {
		stored, err := jobs.GetByID(context.Background(), j.ID)
		return err == nil && stored.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
