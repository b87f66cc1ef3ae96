package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// OperatorService backs the triage surface: job inspection and re-queue,
// fulfillment retry, and booking or order corrections.
type OperatorService struct {
	jobs         job.Repository
	fulfillments fulfillment.Repository
	capacity     fulfillment.CapacityRepository
	payments     payment.Repository
	reconciler   *ReconciliationService
	txManager    TransactionManager
	notifier     JobNotifier
	retry        job.RetryPolicy
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewOperatorService(
	jobs job.Repository,
	fulfillments fulfillment.Repository,
	capacity fulfillment.CapacityRepository,
	payments payment.Repository,
	reconciler *ReconciliationService,
	txManager TransactionManager,
	notifier JobNotifier,
	retry job.RetryPolicy,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OperatorService {
	return &OperatorService{
		jobs:         jobs,
		fulfillments: fulfillments,
		capacity:     capacity,
		payments:     payments,
		reconciler:   reconciler,
		txManager:    txManager,
		notifier:     notifier,
		retry:        retry,
		metrics:      metrics,
		logger:       observability.Component(logger, "operator"),
	}
}

// JobStats returns job counts per status and refreshes the depth gauge.
func (s *OperatorService) JobStats(ctx context.Context) (map[job.Status]int, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for status, n := range stats {
		s.metrics.JobQueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	return stats, nil
}

// RecentJobs returns the most recently updated jobs.
func (s *OperatorService) RecentJobs(ctx context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)
	return s.jobs.Recent(ctx, status, limit)
}

// RequeueJob gives a FAILED job a fresh retry budget.
func (s *OperatorService) RequeueJob(ctx context.Context, id uuid.UUID) (*job.NotificationJob, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := j.Requeue(time.Now().UTC(), s.retry.MaxRetries); err != nil {
		return nil, err
	}
	if err := s.jobs.Requeue(ctx, j); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", j.ID.String()).
		Str("job_type", string(j.Type)).
		Int("attempts", j.Attempts).
		Msg("job requeued by operator")
	if s.notifier != nil {
		if err := s.notifier.NotifyJobs(ctx, j.ID); err != nil {
			s.logger.Debug().Err(err).Msg("job wakeup not delivered")
		}
	}
	return j, nil
}

// RetryFulfillment re-runs fulfillment for a PAID payment without one.
func (s *OperatorService) RetryFulfillment(ctx context.Context, reference string) (*payment.Payment, error) {
	return s.reconciler.RetryFulfillment(ctx, reference)
}

// ListUnfulfilled lists PAID payments waiting for manual reconciliation.
func (s *OperatorService) ListUnfulfilled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.payments.ListUnfulfilled(ctx, min(limit, maxRecentLimit))
}

// CancelBooking cancels a booking and releases the seats it reserved when it
// was created, whatever its participant count is now.
func (s *OperatorService) CancelBooking(ctx context.Context, id uuid.UUID) (*CancelResult, error) {
	var result CancelResult
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		b, err := s.fulfillments.GetBooking(txCtx, id)
		if err != nil {
			return err
		}
		released, err := b.Cancel()
		if err != nil {
			return err
		}
		if err := s.fulfillments.UpdateBooking(txCtx, b); err != nil {
			return err
		}
		remaining, err := s.capacity.AdjustParticipants(txCtx, b.CourseID, -released)
		if err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		result = CancelResult{Released: released, Remaining: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", id.String()).Int("released", result.Released).Msg("booking cancelled")
	return &result, nil
}

// EditBooking changes the booking itself. Course capacity is untouched.
func (s *OperatorService) EditBooking(ctx context.Context, id uuid.UUID, edit BookingEdit) (*fulfillment.Booking, error) {
	b, err := s.fulfillments.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.EditParticipants(edit.Participants); err != nil {
		return nil, err
	}
	if edit.Note != nil {
		b.Note = *edit.Note
	}
	if err := s.fulfillments.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// CancelOrder cancels an art order and returns its reserved quantity to stock.
func (s *OperatorService) CancelOrder(ctx context.Context, id uuid.UUID) (*CancelResult, error) {
	var result CancelResult
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := s.fulfillments.GetOrder(txCtx, id)
		if err != nil {
			return err
		}
		released, err := o.Cancel()
		if err != nil {
			return err
		}
		if err := s.fulfillments.UpdateOrder(txCtx, o); err != nil {
			return err
		}
		stock, err := s.capacity.AdjustStock(txCtx, o.ProductID, released)
		if err != nil {
			return fmt.Errorf("restock: %w", err)
		}
		result = CancelResult{Released: released, Remaining: stock}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", id.String()).Int("released", result.Released).Msg("order cancelled")
	return &result, nil
}
