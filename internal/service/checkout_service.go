package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/domain/staging"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// CheckoutConfig is what order submission needs from configuration.
type CheckoutConfig struct {
	Currency    string
	CallbackURL string
}

// CheckoutService accepts orders: it records the payment and either settles
// it at once (invoice) or hands it to the push-payment provider.
type CheckoutService struct {
	payments   payment.Repository
	staging    staging.Repository
	capacity   fulfillment.CapacityRepository
	gateway    gateway.Gateway
	reconciler *ReconciliationService
	txManager  TransactionManager
	ids        *snowflake.Node
	cfg        CheckoutConfig
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewCheckoutService(
	payments payment.Repository,
	stagingRepo staging.Repository,
	capacity fulfillment.CapacityRepository,
	gw gateway.Gateway,
	reconciler *ReconciliationService,
	txManager TransactionManager,
	ids *snowflake.Node,
	cfg CheckoutConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		payments:   payments,
		staging:    stagingRepo,
		capacity:   capacity,
		gateway:    gw,
		reconciler: reconciler,
		txManager:  txManager,
		ids:        ids,
		cfg:        cfg,
		metrics:    metrics,
		logger:     observability.Component(logger, "checkout"),
	}
}

// Submit accepts an order. Submitting a reference twice returns the
// existing payment with its current status and Replayed set.
func (s *CheckoutService) Submit(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	ctx, span := observability.StartSpan(ctx, "checkout.Submit",
		attribute.String("payment.method", string(req.Method)),
		attribute.String("payment.product_type", string(req.ProductType)))
	resp, err := s.submit(ctx, req)
	if resp != nil && resp.Payment != nil {
		span.SetAttributes(attribute.String("payment.reference", resp.Payment.Reference))
	}
	observability.EndSpan(span, err)
	return resp, err
}

func (s *CheckoutService) submit(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	reference := s.reference(req)

	// 1. Idempotency
	if existing, err := s.payments.GetByReference(ctx, reference); err == nil {
		return s.replay(ctx, existing, req)
	} else if !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return nil, err
	}

	// 2. Validate against the catalogue
	if err := s.validate(ctx, &req); err != nil {
		return nil, err
	}
	amount := payment.Amount{Minor: req.AmountMinor, Currency: req.Currency}

	// 3. Route by method
	switch req.Method {
	case payment.MethodInvoice:
		return s.submitInvoice(ctx, reference, amount, req)
	case payment.MethodPush:
		return s.submitPush(ctx, reference, amount, req)
	default:
		return nil, domainErrors.ErrInvalidMethod
	}
}

func (s *CheckoutService) reference(req SubmitOrderRequest) string {
	if r := strings.TrimSpace(req.Reference); r != "" {
		return r
	}
	if k := strings.TrimSpace(req.IdempotencyKey); k != "" {
		return k
	}
	return strings.ToUpper(s.ids.Generate().Base36())
}

func (s *CheckoutService) validate(ctx context.Context, req *SubmitOrderRequest) error {
	if !req.Method.Valid() {
		return domainErrors.ErrInvalidMethod
	}
	if !req.ProductType.Valid() {
		return domainErrors.ErrInvalidProductType
	}
	if req.Currency == "" {
		req.Currency = s.cfg.Currency
	}
	if s.cfg.Currency != "" && req.Currency != s.cfg.Currency {
		return domainErrors.NewValidationError("currency", "must be "+s.cfg.Currency)
	}
	if req.Method == payment.MethodInvoice {
		if req.Invoice == nil {
			return domainErrors.NewValidationError("invoice_details", "required for invoice payments")
		}
		if err := req.Invoice.Validate(); err != nil {
			return err
		}
	}
	if req.ProductType == payment.ProductGiftCard {
		// One card per payment; its balance is the amount paid.
		req.Details.Quantity = 1
	}
	if err := req.Details.Validate(); err != nil {
		return err
	}

	var unit payment.Amount
	switch req.ProductType {
	case payment.ProductCourse:
		course, err := s.capacity.GetCourse(ctx, req.ProductID)
		if err != nil {
			return err
		}
		unit = course.Price
	case payment.ProductArt:
		product, err := s.capacity.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		unit = product.Price
	case payment.ProductGiftCard:
		return nil
	}
	if unit.Minor > 0 && unit.Minor*int64(req.Details.Quantity) != req.AmountMinor {
		return domainErrors.NewValidationError("amount",
			fmt.Sprintf("must be %d x %s", req.Details.Quantity, unit.String()))
	}
	return nil
}

func (s *CheckoutService) submitInvoice(ctx context.Context, reference string, amount payment.Amount, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	details := req.Details
	p, err := payment.NewPayment(reference, payment.MethodInvoice, req.ProductType, req.ProductID, amount,
		payment.Metadata{Invoice: req.Invoice, Order: &details})
	if err != nil {
		return nil, err
	}
	// Issuing the invoice is the confirmation.
	if err := p.MarkPaid(); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		return s.payments.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventCreated, map[string]any{
			"method": string(p.Method),
			"status": string(p.Status),
		}))
	})
	if errors.Is(err, domainErrors.ErrDuplicateReference) {
		return s.replayExisting(ctx, reference, req)
	}
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.created(p)

	// A failed fulfillment is logged for manual reconciliation; the order
	// is still accepted.
	_ = s.reconciler.ConfirmInvoice(ctx, p)

	current, err := s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitOrderResponse{Payment: current}, nil
}

func (s *CheckoutService) submitPush(ctx context.Context, reference string, amount payment.Amount, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	p, err := payment.NewPayment(reference, payment.MethodPush, req.ProductType, req.ProductID, amount,
		payment.Metadata{PayerAlias: req.PayerAlias})
	if err != nil {
		return nil, err
	}
	pending, err := staging.NewPendingOrder(p.ID, req.Details)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		if err := s.staging.Stage(txCtx, pending); err != nil {
			return err
		}
		return s.payments.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventCreated, map[string]any{
			"method": string(p.Method),
			"status": string(p.Status),
		}))
	})
	if errors.Is(err, domainErrors.ErrDuplicateReference) {
		return s.replayExisting(ctx, reference, req)
	}
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.created(p)

	if err := s.initiate(ctx, p, req.PayerAlias); err != nil {
		return &SubmitOrderResponse{Payment: p}, err
	}
	return &SubmitOrderResponse{Payment: p}, nil
}

// initiate asks the provider to push the request. A failure leaves the
// payment CREATED; the sweeper expires it if nobody retries.
func (s *CheckoutService) initiate(ctx context.Context, p *payment.Payment, payerAlias string) error {
	handle, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Reference:   p.Reference,
		PayerAlias:  payerAlias,
		Amount:      p.Amount,
		Message:     productLabel(p.ProductType) + " " + p.Reference,
		CallbackURL: s.cfg.CallbackURL,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("gateway initiate failed")
		return err
	}

	p.Metadata.GatewayRequestID = handle.RequestID
	if payerAlias != "" {
		p.Metadata.PayerAlias = payerAlias
	}
	if err := s.payments.UpdateMetadata(ctx, p.ID, p.Metadata); err != nil {
		return fmt.Errorf("store gateway handle: %w", err)
	}
	if err := s.payments.AddEvent(ctx, payment.NewEvent(p.ID, payment.EventGatewayInitiated, map[string]any{
		"request_id": handle.RequestID,
	})); err != nil {
		s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("failed to record payment event")
	}
	return nil
}

func (s *CheckoutService) replayExisting(ctx context.Context, reference string, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	existing, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.replay(ctx, existing, req)
}

// replay answers a resubmitted reference. A push payment whose initiation
// never reached the provider gets another attempt.
func (s *CheckoutService) replay(ctx context.Context, existing *payment.Payment, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	resp := &SubmitOrderResponse{Payment: existing, Replayed: true}
	if existing.Method == payment.MethodPush &&
		existing.Status == payment.StatusCreated &&
		existing.Metadata.GatewayRequestID == "" {
		alias := req.PayerAlias
		if alias == "" {
			alias = existing.Metadata.PayerAlias
		}
		if err := s.initiate(ctx, existing, alias); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (s *CheckoutService) created(p *payment.Payment) {
	s.metrics.PaymentsCreated.WithLabelValues(string(p.Method), string(p.ProductType)).Inc()
	s.logger.Info().
		Str("reference", p.Reference).
		Str("method", string(p.Method)).
		Str("product_type", string(p.ProductType)).
		Str("amount", p.Amount.String()).
		Msg("payment created")
}
