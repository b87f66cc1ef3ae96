package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/internal/notification"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errLeaseExpired = errors.New("worker lease expired before the attempt finished")

const finishTimeout = 5 * time.Second

// Dispatcher delivers one notification job.
type Dispatcher interface {
	Dispatch(ctx context.Context, j *job.NotificationJob) error
}

// WakeupSource blocks until new jobs are announced or its block time passes.
type WakeupSource interface {
	Next(ctx context.Context) (int, error)
}

// JobWorker drains the notification queue. Each poller claims a batch,
// dispatches it and records the outcome; a reaper returns jobs abandoned by
// crashed workers to the queue.
type JobWorker struct {
	jobs       job.Repository
	dispatcher Dispatcher
	txManager  service.TransactionManager
	wakeups    WakeupSource
	retry      job.RetryPolicy
	cfg        config.JobsConfig
	metrics    *observability.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	wake chan struct{}
}

// NewJobWorker creates the worker. wakeups may be nil, in which case the
// pollers rely on their interval alone.
func NewJobWorker(
	jobs job.Repository,
	dispatcher Dispatcher,
	txManager service.TransactionManager,
	wakeups WakeupSource,
	retry job.RetryPolicy,
	cfg config.JobsConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *JobWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &JobWorker{
		jobs:       jobs,
		dispatcher: dispatcher,
		txManager:  txManager,
		wakeups:    wakeups,
		retry:      retry,
		cfg:        cfg,
		metrics:    metrics,
		logger:     observability.Component(logger, "job_worker"),
		now:        func() time.Time { return time.Now().UTC() },
		wake:       make(chan struct{}, 1),
	}
}

// Run starts the pollers, the reaper and the wake-up listener and blocks
// until ctx is cancelled.
func (w *JobWorker) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			w.poll(gCtx, id)
			return nil
		})
	}
	g.Go(func() error {
		w.reap(gCtx)
		return nil
	})
	if w.wakeups != nil {
		g.Go(func() error {
			w.listen(gCtx)
			return nil
		})
	}

	w.logger.Info().
		Int("workers", w.cfg.Workers).
		Int("batch_size", w.cfg.BatchSize).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("job worker started")

	return g.Wait()
}

func (w *JobWorker) poll(ctx context.Context, id int) {
	logger := w.logger.With().Int("poller", id).Logger()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}

		// Keep claiming while batches come back full.
		for ctx.Err() == nil {
			n, err := w.ProcessBatch(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to claim jobs")
				break
			}
			if n < w.cfg.BatchSize {
				break
			}
		}
	}
}

func (w *JobWorker) listen(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.wakeups.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn().Err(err).Msg("Failed to read job wakeups")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if n > 0 {
			select {
			case w.wake <- struct{}{}:
			default:
			}
		}
	}
}

// ProcessBatch claims up to one batch of due jobs and runs each of them.
// It returns the number of jobs claimed.
func (w *JobWorker) ProcessBatch(ctx context.Context) (int, error) {
	claimed, err := w.jobs.ClaimBatch(ctx, w.cfg.BatchSize, w.now())
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	for _, j := range claimed {
		w.process(ctx, j)
	}
	return len(claimed), nil
}

func (w *JobWorker) process(ctx context.Context, j *job.NotificationJob) {
	start := time.Now()
	dispatchErr := w.dispatcher.Dispatch(ctx, j)
	w.metrics.JobDispatchDuration.WithLabelValues(string(j.Type)).Observe(time.Since(start).Seconds())

	now := w.now()
	var (
		result        string
		transitionErr error
	)
	switch {
	case dispatchErr == nil:
		transitionErr = j.Complete(now)
		result = "completed"
	case notification.IsPermanent(dispatchErr):
		transitionErr = j.Abandon(dispatchErr, now)
		result = "abandoned"
	default:
		transitionErr = j.Fail(dispatchErr, now, w.retry)
		result = "retry"
		if j.Status == job.StatusFailed {
			result = "failed"
		}
	}
	if transitionErr != nil {
		// Left to the stale reaper.
		w.logger.Error().Err(transitionErr).
			Str("job_id", j.ID.String()).
			Str("status", string(j.Status)).
			Msg("Job outcome could not be applied")
		return
	}

	// The outcome is recorded even when shutdown cancelled ctx mid-attempt.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := w.jobs.Finish(finishCtx, j); err != nil {
		if errors.Is(err, domainErrors.ErrJobNotClaimed) {
			w.logger.Warn().Str("job_id", j.ID.String()).Msg("Job lease lost before finish, outcome discarded")
			return
		}
		w.logger.Error().Err(err).Str("job_id", j.ID.String()).Msg("Failed to record job outcome")
		return
	}

	w.metrics.JobsProcessed.WithLabelValues(string(j.Type), result).Inc()

	level := zerolog.InfoLevel
	switch result {
	case "retry":
		level = zerolog.WarnLevel
	case "failed", "abandoned":
		level = zerolog.ErrorLevel
	}
	w.logger.WithLevel(level).Err(dispatchErr).
		Str("job_id", j.ID.String()).
		Str("payment_id", j.PaymentID.String()).
		Str("job_type", string(j.Type)).
		Str("result", result).
		Int("attempts", j.Attempts).
		Time("next_attempt_at", j.NextAttemptAt).
		Msg("job processed")
}

func (w *JobWorker) reap(ctx context.Context) {
	interval := w.cfg.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := w.ReapStale(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reap stale jobs")
		}
		w.RefreshQueueDepth(ctx)
	}
}

// ReapStale returns jobs stuck in PROCESSING longer than StaleAfter to the
// queue. The abandoned attempt counts against the job's retry budget.
func (w *JobWorker) ReapStale(ctx context.Context) (int, error) {
	now := w.now()
	cutoff := now.Add(-w.cfg.StaleAfter)
	reclaimed := 0

	err := w.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		reclaimed = 0
		stale, err := w.jobs.LockStale(txCtx, cutoff, w.cfg.BatchSize*10)
		if err != nil {
			return err
		}
		for _, j := range stale {
			if err := j.Fail(errLeaseExpired, now, w.retry); err != nil {
				return err
			}
			if err := w.jobs.Finish(txCtx, j); err != nil {
				if errors.Is(err, domainErrors.ErrJobNotClaimed) {
					continue
				}
				return err
			}
			reclaimed++
			w.logger.Warn().
				Str("job_id", j.ID.String()).
				Str("status", string(j.Status)).
				Int("attempts", j.Attempts).
				Msg("stale job reclaimed")
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	w.metrics.JobsReclaimed.Add(float64(reclaimed))
	return reclaimed, nil
}

// RefreshQueueDepth publishes the per-status job counts.
func (w *JobWorker) RefreshQueueDepth(ctx context.Context) {
	stats, err := w.jobs.Stats(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to read job stats")
		return
	}
	for _, s := range job.Statuses {
		w.metrics.JobQueueDepth.WithLabelValues(string(s)).Set(float64(stats[s]))
	}
}
