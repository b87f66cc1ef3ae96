package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/studiopay/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Checkout   CheckoutService
	Queries    QueryService
	Verifier   CallbackVerifier
	Reconciler CallbackReconciler
	Operator   OperatorService
	Health     *HealthController
	Metrics    *observability.Metrics
	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler http.Handler
	Server         config.ServerConfig
	Auth           config.AuthConfig
	Logger         zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := deps.Health
	if healthH == nil {
		healthH = NewHealthController()
	}
	orderH := NewOrderController(deps.Checkout, deps.Queries)
	callbackH := NewCallbackController(deps.Verifier, deps.Reconciler, deps.Logger)
	operatorH := NewOperatorController(deps.Operator, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Provider callbacks are authenticated by signature and never throttled.
		r.Post("/callbacks/payments", callbackH.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(customMW.RateLimit(deps.Server.RateLimit))
			r.Post("/orders", orderH.SubmitOrder)
			r.Get("/payments/{reference}", orderH.GetPayment)
			r.Get("/gift-cards/{code}", orderH.GetGiftCard)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		if deps.Auth.JWTSecret != "" {
			r.Use(customMW.RequireOperator(deps.Auth.JWTSecret))
		} else {
			deps.Logger.Warn().Msg("auth.jwt_secret not set, operator routes are unauthenticated")
		}

		r.Get("/jobs/stats", operatorH.JobStats)
		r.Get("/jobs", operatorH.ListJobs)
		r.Post("/jobs/{id}/requeue", operatorH.RequeueJob)

		r.Get("/payments/unfulfilled", operatorH.ListUnfulfilled)
		r.Post("/payments/{reference}/fulfill", operatorH.RetryFulfillment)

		r.Post("/bookings/{id}/cancel", operatorH.CancelBooking)
		r.Patch("/bookings/{id}", operatorH.EditBooking)
		r.Post("/orders/{id}/cancel", operatorH.CancelOrder)
	})

	return r
}
