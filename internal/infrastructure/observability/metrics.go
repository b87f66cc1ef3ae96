package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Payment metrics
	PaymentsCreated    *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	CallbacksTotal     *prometheus.CounterVec
	FulfillmentErrors  *prometheus.CounterVec
	CapacityOverdrawn  *prometheus.CounterVec
	PaymentsExpired    prometheus.Counter
	GatewayRequests    *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec

	// Job queue metrics
	JobsEnqueued        *prometheus.CounterVec
	JobsProcessed       *prometheus.CounterVec
	JobDispatchDuration *prometheus.HistogramVec
	JobsReclaimed       prometheus.Counter
	JobQueueDepth       *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PaymentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_created_total",
				Help:      "Total number of payments created by method and product type",
			},
			[]string{"method", "product_type"},
		),
		PaymentTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_transitions_total",
				Help:      "Total number of payment status transitions by method and target status",
			},
			[]string{"method", "status"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_callbacks_total",
				Help:      "Total number of gateway callbacks by outcome",
			},
			[]string{"outcome"},
		),
		FulfillmentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fulfillment_errors_total",
				Help:      "Fulfillments that failed after the payment was accepted",
			},
			[]string{"product_type", "stage"},
		),
		CapacityOverdrawn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capacity_overdrawn_total",
				Help:      "Fulfillments that pushed a course past capacity or a product below zero stock",
			},
			[]string{"product_type"},
		),
		PaymentsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_expired_total",
				Help:      "Push payments declined by the sweeper after expiry",
			},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total number of gateway requests by operation and result",
			},
			[]string{"operation", "result"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Gateway request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		JobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_enqueued_total",
				Help:      "Total number of notification jobs enqueued",
			},
			[]string{"type"},
		),
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Total number of notification job attempts by type and result",
			},
			[]string{"type", "result"},
		),
		JobDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_dispatch_duration_seconds",
				Help:      "Notification dispatch duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		JobsReclaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_reclaimed_total",
				Help:      "Jobs released after their worker lease went stale",
			},
		),
		JobQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_queue_depth",
				Help:      "Number of notification jobs per status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.PaymentsCreated,
		m.PaymentTransitions,
		m.CallbacksTotal,
		m.FulfillmentErrors,
		m.CapacityOverdrawn,
		m.PaymentsExpired,
		m.GatewayRequests,
		m.GatewayDuration,
		m.JobsEnqueued,
		m.JobsProcessed,
		m.JobDispatchDuration,
		m.JobsReclaimed,
		m.JobQueueDepth,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
	)

	return m
}

// NewNopMetrics registers against a private registry. Useful in tests and
// tools that do not expose /metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics("nop", prometheus.NewRegistry())
}
