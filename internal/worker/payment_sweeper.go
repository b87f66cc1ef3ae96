package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/rs/zerolog"
)

const sweeperLockKey = "payment-sweeper"

// expiredStatus is the provider-style status recorded for payments nobody
// answered. It maps to DECLINED.
const expiredStatus = "EXPIRED"

// Locker grants named leases across instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// Reconciler applies a provider status to a payment.
type Reconciler interface {
	Apply(ctx context.Context, p *payment.Payment, event gateway.CallbackEvent, source string) (*service.ReconcileResult, error)
}

// PaymentSweeper resolves push payments that never got a callback. It polls
// the provider for each one and expires those still unanswered.
type PaymentSweeper struct {
	payments   payment.Repository
	gw         gateway.Gateway
	reconciler Reconciler
	locker     Locker
	cfg        config.SweeperConfig
	expiry     time.Duration
	metrics    *observability.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

func NewPaymentSweeper(
	payments payment.Repository,
	gw gateway.Gateway,
	reconciler Reconciler,
	locker Locker,
	cfg config.SweeperConfig,
	expiry time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &PaymentSweeper{
		payments:   payments,
		gw:         gw,
		reconciler: reconciler,
		locker:     locker,
		cfg:        cfg,
		expiry:     expiry,
		metrics:    metrics,
		logger:     observability.Component(logger, "payment_sweeper"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("expiry", s.expiry).Msg("payment sweeper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Payment sweep failed")
		}
	}
}

// Sweep handles one batch of stale push payments and returns how many were
// resolved. It does nothing when another instance holds the sweep lock.
func (s *PaymentSweeper) Sweep(ctx context.Context) (int, error) {
	unlock, acquired, err := s.locker.TryLock(ctx, sweeperLockKey, s.cfg.LockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		s.logger.Debug().Msg("sweep lock held elsewhere, skipping")
		return 0, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release sweep lock")
		}
	}()

	now := s.now()
	stale, err := s.payments.ListStale(ctx, payment.MethodPush, now.Add(-s.expiry), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	resolved := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.resolve(ctx, p, now)
		if err != nil {
			s.logger.Error().Err(err).Str("reference", p.Reference).Msg("Failed to resolve stale payment")
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (s *PaymentSweeper) resolve(ctx context.Context, p *payment.Payment, now time.Time) (bool, error) {
	handle := gateway.Handle{RequestID: p.Metadata.GatewayRequestID}

	if handle.RequestID != "" {
		event, err := s.gw.Status(ctx, handle)
		switch {
		case err != nil:
			// A provider outage must not decline payments that may have
			// been paid. Give up on polling once the payment is twice as
			// old as the expiry.
			if p.CreatedAt.After(now.Add(-2 * s.expiry)) {
				s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("status poll failed, retrying next sweep")
				return false, nil
			}
		case event.LocalStatus().IsTerminal():
			ev := *event
			ev.Reference = p.Reference
			if ev.RequestID == "" {
				ev.RequestID = handle.RequestID
			}
			result, err := s.reconciler.Apply(ctx, p, ev, service.SourcePoll)
			if err != nil {
				return false, err
			}
			s.logger.Info().
				Str("reference", p.Reference).
				Str("status", string(result.Payment.Status)).
				Str("outcome", string(result.Outcome)).
				Msg("stale payment resolved by status poll")
			return true, nil
		}

		if err := s.gw.Cancel(ctx, handle); err != nil {
			s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("gateway cancel failed, expiring anyway")
		}
	}

	result, err := s.reconciler.Apply(ctx, p, gateway.CallbackEvent{
		RequestID:    handle.RequestID,
		Reference:    p.Reference,
		Status:       expiredStatus,
		ErrorCode:    expiredStatus,
		ErrorMessage: fmt.Sprintf("no answer within %s", s.expiry),
	}, service.SourceExpiry)
	if err != nil {
		return false, err
	}
	if result.Outcome == service.OutcomeApplied {
		s.metrics.PaymentsExpired.Inc()
		s.logger.Info().Str("reference", p.Reference).Msg("payment expired")
	}
	return true, nil
}
