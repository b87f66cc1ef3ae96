package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/domain/staging"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// JobNotifier wakes workers up for freshly enqueued jobs. Delivery is best
// effort; workers poll anyway.
type JobNotifier interface {
	NotifyJobs(ctx context.Context, jobIDs ...uuid.UUID) error
}

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeReplayed Outcome = "replayed"
	OutcomePending  Outcome = "pending"
	OutcomeUnknown  Outcome = "unknown_reference"
)

// Source names where a status came from, for the audit trail.
const (
	SourceCallback = "callback"
	SourcePoll     = "poll"
	SourceExpiry   = "expiry"
	SourceInvoice  = "invoice"
	SourceOperator = "operator"
)

// ReconcileResult is returned by every reconciliation entry point.
// FulfillmentErr is set when the payment is PAID but fulfillment failed;
// the callback itself still succeeded.
type ReconcileResult struct {
	Payment        *payment.Payment
	Outcome        Outcome
	Fulfilled      bool
	FulfillmentErr error
}

// ReconciliationService is the payment state machine. It applies provider
// statuses to payments and materializes fulfillments exactly once.
type ReconciliationService struct {
	payments  payment.Repository
	staging   staging.Repository
	jobs      job.Repository
	builder   *FulfillmentBuilder
	txManager TransactionManager
	notifier  JobNotifier
	retry     job.RetryPolicy
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReconciliationService(
	payments payment.Repository,
	stagingRepo staging.Repository,
	jobs job.Repository,
	builder *FulfillmentBuilder,
	txManager TransactionManager,
	notifier JobNotifier,
	retry job.RetryPolicy,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		payments:  payments,
		staging:   stagingRepo,
		jobs:      jobs,
		builder:   builder,
		txManager: txManager,
		notifier:  notifier,
		retry:     retry,
		metrics:   metrics,
		logger:    observability.Component(logger, "reconciliation"),
	}
}

// HandleCallback reconciles a verified provider callback. Unknown references
// are acknowledged so the provider stops redelivering.
func (s *ReconciliationService) HandleCallback(ctx context.Context, event gateway.CallbackEvent) (*ReconcileResult, error) {
	ctx, span := observability.StartSpan(ctx, "reconciliation.HandleCallback",
		attribute.String("payment.reference", event.Reference),
		attribute.String("gateway.status", event.Status))
	result, err := s.handleCallback(ctx, event)
	observability.EndSpan(span, err)
	return result, err
}

func (s *ReconciliationService) handleCallback(ctx context.Context, event gateway.CallbackEvent) (*ReconcileResult, error) {
	p, err := s.payments.GetByReference(ctx, event.Reference)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		s.metrics.CallbacksTotal.WithLabelValues(string(OutcomeUnknown)).Inc()
		s.logger.Warn().
			Str("reference", event.Reference).
			Str("status", event.Status).
			Msg("callback for unknown reference acknowledged")
		return &ReconcileResult{Outcome: OutcomeUnknown}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	result, err := s.Apply(ctx, p, event, SourceCallback)
	if err != nil {
		return nil, err
	}
	s.metrics.CallbacksTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// Apply moves a payment to the status the provider reported. Terminal
// payments are left alone, which makes redelivered callbacks harmless.
func (s *ReconciliationService) Apply(ctx context.Context, p *payment.Payment, event gateway.CallbackEvent, source string) (*ReconcileResult, error) {
	if p.IsTerminal() {
		s.recordEvent(ctx, p.ID, payment.EventCallbackReplayed, map[string]any{
			"source":          source,
			"external_status": event.Status,
			"current_status":  string(p.Status),
		})
		return &ReconcileResult{Payment: p, Outcome: OutcomeReplayed, Fulfilled: p.IsFulfilled()}, nil
	}

	target := event.LocalStatus()
	if target == payment.StatusCreated {
		return &ReconcileResult{Payment: p, Outcome: OutcomePending}, nil
	}
	if target == payment.StatusPaid && !amountMatches(p, event) {
		s.logger.Error().
			Str("reference", p.Reference).
			Str("expected", p.Amount.String()).
			Str("reported", event.Amount.StringFixed(2)+" "+event.Currency).
			Msg("provider reported a different amount, marking payment as error")
		target = payment.StatusError
		event.ErrorCode = "AMOUNT_MISMATCH"
	}

	var updated *payment.Payment
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.payments.UpdateStatus(txCtx, p.ID, target)
		if err != nil {
			return err
		}

		md := updated.Metadata
		md.ExternalStatus = event.Status
		if event.RequestID != "" {
			md.GatewayRequestID = event.RequestID
		}
		if event.PayerAlias != "" {
			md.PayerAlias = event.PayerAlias
		}
		md.ErrorCode = event.ErrorCode
		md.ErrorMessage = event.ErrorMessage
		if err := s.payments.UpdateMetadata(txCtx, p.ID, md); err != nil {
			return err
		}
		updated.Metadata = md

		if target != payment.StatusPaid {
			if err := s.staging.Delete(txCtx, p.ID); err != nil {
				return fmt.Errorf("delete pending order: %w", err)
			}
		}

		return s.payments.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventStatusChanged, map[string]any{
			"source":          source,
			"from":            string(payment.StatusCreated),
			"to":              string(target),
			"external_status": event.Status,
		}))
	})
	if errors.Is(err, domainErrors.ErrInvalidTransition) {
		// A concurrent delivery won the guarded update.
		current, getErr := s.payments.GetByID(ctx, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		return &ReconcileResult{Payment: current, Outcome: OutcomeReplayed, Fulfilled: current.IsFulfilled()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply status %s: %w", target, err)
	}

	s.metrics.PaymentTransitions.WithLabelValues(string(updated.Method), string(target)).Inc()
	s.logger.Info().
		Str("reference", updated.Reference).
		Str("status", string(target)).
		Str("source", source).
		Msg("payment status changed")

	result := &ReconcileResult{Payment: updated, Outcome: OutcomeApplied}
	if target == payment.StatusPaid {
		result.FulfillmentErr = s.fulfill(ctx, updated)
		result.Fulfilled = result.FulfillmentErr == nil
		if result.Fulfilled {
			if refreshed, err := s.payments.GetByID(ctx, updated.ID); err == nil {
				result.Payment = refreshed
			}
		}
	}
	return result, nil
}

// ConfirmInvoice runs the post-payment side effects for an invoice payment
// that was created PAID.
func (s *ReconciliationService) ConfirmInvoice(ctx context.Context, p *payment.Payment) error {
	ctx, span := observability.StartSpan(ctx, "reconciliation.ConfirmInvoice",
		attribute.String("payment.reference", p.Reference))
	err := s.fulfill(ctx, p)
	observability.EndSpan(span, err)
	return err
}

// RetryFulfillment re-runs fulfillment for a PAID payment that has none,
// typically after an operator fixed whatever made the first attempt fail.
func (s *ReconciliationService) RetryFulfillment(ctx context.Context, reference string) (*payment.Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusPaid {
		return nil, domainErrors.ErrNotPaid
	}
	if p.IsFulfilled() {
		return nil, domainErrors.ErrAlreadyFulfilled
	}
	if err := s.fulfill(ctx, p); err != nil {
		return nil, err
	}
	return s.payments.GetByID(ctx, p.ID)
}

// fulfill builds the fulfillment, links it and enqueues its notification in
// one transaction. On failure the payment stays PAID, the staging row is
// kept for a retry, and a plain receipt is queued instead.
func (s *ReconciliationService) fulfill(ctx context.Context, p *payment.Payment) error {
	var (
		details   *payment.OrderDetails
		enqueued  *job.NotificationJob
		stage     = "order_details"
		createdAt = time.Now()
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		d, err := s.orderDetails(txCtx, p)
		if err != nil {
			return err
		}
		details = &d

		stage = "build"
		created, err := s.builder.Build(txCtx, p, d)
		if err != nil {
			return err
		}

		stage = "link"
		if err := s.payments.SetFulfillment(txCtx, p.ID, created.Fulfillment.FulfillmentID()); err != nil {
			return err
		}

		stage = "enqueue"
		j, err := job.New(p.ID, created.Payload, s.retry.MaxRetries)
		if err != nil {
			return err
		}
		switch err := s.jobs.Enqueue(txCtx, j); {
		case errors.Is(err, domainErrors.ErrDuplicateJob):
			// A receipt went out after an earlier failed attempt.
		case err != nil:
			return err
		default:
			enqueued = j
		}

		return s.payments.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventFulfilled, map[string]any{
			"fulfillment_id": created.Fulfillment.FulfillmentID().String(),
			"product_type":   string(p.ProductType),
			"overdrawn":      created.Overdrawn,
		}))
	})
	if err != nil {
		fErr := domainErrors.NewFulfillmentError(p.Reference, stage, err)
		s.fulfillmentFailed(ctx, p, details, fErr)
		return fErr
	}

	s.logger.Info().
		Str("reference", p.Reference).
		Str("product_type", string(p.ProductType)).
		Dur("took", time.Since(createdAt)).
		Msg("payment fulfilled")
	if enqueued != nil {
		s.jobQueued(ctx, enqueued)
	}
	return nil
}

// orderDetails returns what the customer submitted: the staged row for push
// payments, the metadata snapshot for invoices.
func (s *ReconciliationService) orderDetails(ctx context.Context, p *payment.Payment) (payment.OrderDetails, error) {
	if p.Method == payment.MethodInvoice {
		d, ok := p.OrderDetails()
		if !ok {
			return payment.OrderDetails{}, domainErrors.ErrCustomerMissing
		}
		return d, nil
	}
	pending, err := s.staging.Consume(ctx, p.ID)
	if err != nil {
		return payment.OrderDetails{}, err
	}
	return pending.OrderDetails, nil
}

func (s *ReconciliationService) fulfillmentFailed(ctx context.Context, p *payment.Payment, details *payment.OrderDetails, fErr *domainErrors.FulfillmentError) {
	s.metrics.FulfillmentErrors.WithLabelValues(string(p.ProductType), fErr.Stage).Inc()
	s.logger.Error().
		Err(fErr.Err).
		Str("reference", p.Reference).
		Str("stage", fErr.Stage).
		Bool("manual_reconciliation", true).
		Msg("fulfillment failed after payment")
	s.recordEvent(ctx, p.ID, payment.EventFulfillmentFailed, map[string]any{
		"stage": fErr.Stage,
		"error": fErr.Err.Error(),
	})

	if details == nil {
		if d, ok := p.OrderDetails(); ok {
			details = &d
		}
	}
	if details == nil {
		s.logger.Warn().Str("reference", p.Reference).Msg("no customer contact, receipt not sent")
		return
	}

	receipt, err := job.New(p.ID, &job.PaymentConfirmation{
		Recipient:    details.Customer,
		Payment:      job.NewPaymentSnapshot(p),
		ProductTitle: productLabel(p.ProductType),
	}, s.retry.MaxRetries)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", p.Reference).Msg("build receipt job")
		return
	}
	switch err := s.jobs.Enqueue(ctx, receipt); {
	case errors.Is(err, domainErrors.ErrDuplicateJob):
	case err != nil:
		s.logger.Error().Err(err).Str("reference", p.Reference).Msg("enqueue receipt job")
	default:
		s.jobQueued(ctx, receipt)
	}
}

func (s *ReconciliationService) jobQueued(ctx context.Context, j *job.NotificationJob) {
	s.metrics.JobsEnqueued.WithLabelValues(string(j.Type)).Inc()
	s.recordEvent(ctx, j.PaymentID, payment.EventNotificationQueued, map[string]any{
		"job_id":   j.ID.String(),
		"job_type": string(j.Type),
	})
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyJobs(ctx, j.ID); err != nil {
		s.logger.Debug().Err(err).Str("job_id", j.ID.String()).Msg("job wakeup not delivered")
	}
}

func (s *ReconciliationService) recordEvent(ctx context.Context, paymentID uuid.UUID, eventType string, data map[string]any) {
	if err := s.payments.AddEvent(ctx, payment.NewEvent(paymentID, eventType, data)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to record payment event")
	}
}

// amountMatches accepts events that carry no amount; status polls often don't.
func amountMatches(p *payment.Payment, event gateway.CallbackEvent) bool {
	if event.Amount.IsZero() {
		return true
	}
	if event.Currency != "" && event.Currency != p.Amount.Currency {
		return false
	}
	return event.Amount.Equal(p.Amount.Decimal())
}

func productLabel(t payment.ProductType) string {
	switch t {
	case payment.ProductCourse:
		return "Course booking"
	case payment.ProductGiftCard:
		return "Gift card"
	case payment.ProductArt:
		return "Art purchase"
	}
	return string(t)
}
