package bootstrap

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/cassiomorais/studiopay/internal/domain/document"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/studiopay/internal/infrastructure/redis"
	"github.com/cassiomorais/studiopay/internal/infrastructure/storage"
	"github.com/cassiomorais/studiopay/internal/notification"
	"github.com/cassiomorais/studiopay/internal/repository/postgres"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Str("env", cfg.Env).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return app, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
}

// RetryPolicy is the job retry policy from configuration.
func (a *App) RetryPolicy() job.RetryPolicy {
	return job.RetryPolicy{
		MaxRetries:  a.Config.Jobs.MaxRetries,
		BaseBackoff: a.Config.Jobs.BaseBackoff,
		MaxBackoff:  a.Config.Jobs.MaxBackoff,
	}
}

// Services holds the repositories and services both binaries share.
type Services struct {
	Payments     *postgres.PaymentRepository
	Jobs         *postgres.JobRepository
	Fulfillments *postgres.FulfillmentRepository
	Capacity     *postgres.CapacityRepository
	Staging      *postgres.StagingRepository
	Documents    *postgres.DocumentRepository
	TxManager    *postgres.TxManager

	Gateway  gateway.Gateway
	Verifier *gateway.Verifier
	Notifier *infraRedis.StreamProducer

	Reconciler *service.ReconciliationService
	Checkout   *service.CheckoutService
	Operator   *service.OperatorService
	Queries    *service.QueryService
}

func (a *App) Services() (*Services, error) {
	cfg := a.Config

	node, err := snowflake.NewNode(nodeID(cfg.InstanceID))
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	s := &Services{
		Payments:     postgres.NewPaymentRepository(a.Pool),
		Jobs:         postgres.NewJobRepository(a.Pool),
		Fulfillments: postgres.NewFulfillmentRepository(a.Pool),
		Capacity:     postgres.NewCapacityRepository(a.Pool),
		Staging:      postgres.NewStagingRepository(a.Pool),
		Documents:    postgres.NewDocumentRepository(a.Pool),
		TxManager:    postgres.NewTxManager(a.Pool),
		Gateway:      gateway.New(cfg.Gateway, a.Metrics, a.Logger),
		Verifier:     gateway.NewVerifier(cfg.Gateway.CallbackSecret, cfg.Gateway.SkipSignatureVerification),
		Notifier:     infraRedis.NewStreamProducer(a.Redis),
	}
	if s.Verifier.Skipping() {
		observability.SecurityEvent(a.Logger).Msg("callback signature verification is disabled")
	}

	retry := a.RetryPolicy()
	builder := service.NewFulfillmentBuilder(s.Fulfillments, s.Capacity, nil, s.TxManager,
		cfg.GiftCard.Validity, a.Metrics, a.Logger)
	s.Reconciler = service.NewReconciliationService(s.Payments, s.Staging, s.Jobs, builder,
		s.TxManager, s.Notifier, retry, a.Metrics, a.Logger)
	s.Checkout = service.NewCheckoutService(s.Payments, s.Staging, s.Capacity, s.Gateway, s.Reconciler,
		s.TxManager, node, service.CheckoutConfig{
			Currency:    cfg.Gateway.Currency,
			CallbackURL: cfg.Gateway.CallbackURL,
		}, a.Metrics, a.Logger)
	s.Operator = service.NewOperatorService(s.Jobs, s.Fulfillments, s.Capacity, s.Payments, s.Reconciler,
		s.TxManager, s.Notifier, retry, a.Metrics, a.Logger)
	s.Queries = service.NewQueryService(s.Payments, s.Fulfillments)

	return s, nil
}

// Dispatcher builds the notification pipeline: templates, documents and
// the configured mail transport.
func (a *App) Dispatcher(s *Services) (*notification.Dispatcher, error) {
	cfg := a.Config
	brand := cfg.Mail.FromName

	renderer, err := notification.NewRenderer(brand)
	if err != nil {
		return nil, err
	}

	var publisher document.Publisher
	if cfg.Storage.Backend == "cloudinary" {
		cld, err := storage.NewCloudinaryPublisher(cfg.Storage.Cloudinary)
		if err != nil {
			return nil, err
		}
		publisher = cld
		a.Logger.Info().Str("folder", cfg.Storage.Cloudinary.Folder).Msg("Publishing documents to Cloudinary")
	}

	issuer := notification.Issuer{
		Name:        cfg.Invoice.IssuerName,
		OrgNumber:   cfg.Invoice.IssuerOrgNumber,
		Address:     cfg.Invoice.IssuerAddress,
		BankAccount: cfg.Invoice.BankAccount,
		DueDays:     cfg.Invoice.DueDays,
	}
	documents, err := notification.NewDocuments(s.Documents, publisher, brand, issuer, a.Logger)
	if err != nil {
		return nil, err
	}

	var transport notification.Transport
	switch cfg.Mail.Transport {
	case "smtp":
		transport, err = notification.NewSMTPTransport(cfg.Mail, a.Metrics, a.Logger)
		if err != nil {
			return nil, err
		}
	default:
		transport = notification.NewLogTransport(a.Logger)
	}

	return notification.NewDispatcher(renderer, documents, transport, cfg.Jobs.SendTimeout, a.Logger), nil
}

// nodeID derives a snowflake node number from the instance id.
func nodeID(instanceID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(instanceID))
	return int64(h.Sum32() % 1024)
}
