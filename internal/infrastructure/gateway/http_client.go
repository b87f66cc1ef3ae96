package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	opInitiate = "initiate"
	opStatus   = "status"
	opCancel   = "cancel"

	maxResponseBody = 1 << 20
)

type response struct {
	statusCode int
	location   string
	body       []byte
}

var _ Gateway = (*HTTPClient)(nil)

// HTTPClient talks to the provider's REST API. Every call is bounded by the
// configured timeout, retried on retryable failures and guarded by a
// circuit breaker.
type HTTPClient struct {
	baseURL       string
	apiKey        string
	merchantAlias string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker[*response]
	retry         retry.Config
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewHTTPClient(cfg config.GatewayConfig, metrics *observability.Metrics, logger zerolog.Logger) *HTTPClient {
	c := &HTTPClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		merchantAlias: cfg.MerchantAlias,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		metrics:       metrics,
		logger:        observability.Component(logger, "gateway"),
	}

	threshold := uint32(cfg.CircuitBreakerThreshold)
	if threshold == 0 {
		threshold = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections are the provider answering; only outages trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	c.retry = retry.Config{
		MaxAttempts:  uint(attempts),
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     cfg.Timeout,
		RetryIf:      isRetryable,
		OnRetry: func(n uint, err error) {
			c.logger.Warn().Err(err).Uint("attempt", n+1).Msg("Retrying gateway call")
		},
	}
	return c
}

// Initiate creates a payment request at the provider.
func (c *HTTPClient) Initiate(ctx context.Context, req InitiateRequest) (*Handle, error) {
	body, err := json.Marshal(newPaymentRequest(req, c.merchantAlias))
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	resp, err := c.call(ctx, opInitiate, http.MethodPost, "/v1/paymentrequests", body)
	if err != nil {
		return nil, err
	}

	handle := &Handle{Location: resp.location}
	if len(resp.body) > 0 {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resp.body, &created); err == nil {
			handle.RequestID = created.ID
		}
	}
	if handle.RequestID == "" && resp.location != "" {
		handle.RequestID = lastSegment(resp.location)
	}
	if handle.RequestID == "" {
		return nil, domainErrors.NewGatewayError(opInitiate, resp.statusCode, false,
			fmt.Errorf("%w: response carried no request id", domainErrors.ErrGatewayRejected))
	}
	return handle, nil
}

// Status fetches the provider's current view of a payment request.
func (c *HTTPClient) Status(ctx context.Context, handle Handle) (*CallbackEvent, error) {
	resp, err := c.call(ctx, opStatus, http.MethodGet, "/v1/paymentrequests/"+url.PathEscape(handle.RequestID), nil)
	if err != nil {
		return nil, err
	}

	var event CallbackEvent
	if err := json.Unmarshal(resp.body, &event); err != nil {
		return nil, domainErrors.NewGatewayError(opStatus, resp.statusCode, false,
			fmt.Errorf("%w: decode status: %v", domainErrors.ErrGatewayRejected, err))
	}
	return &event, nil
}

// Cancel withdraws an unanswered payment request.
func (c *HTTPClient) Cancel(ctx context.Context, handle Handle) error {
	body := []byte(`[{"op":"replace","path":"/status","value":"cancelled"}]`)
	_, err := c.call(ctx, opCancel, http.MethodPatch, "/v1/paymentrequests/"+url.PathEscape(handle.RequestID), body)
	return err
}

func (c *HTTPClient) call(ctx context.Context, op, method, path string, body []byte) (*response, error) {
	start := time.Now()
	resp, err := retry.DoWithResult(ctx, c.retry, func() (*response, error) {
		return c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, op, method, path, body)
		})
	})
	c.metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domainErrors.NewGatewayError(op, 0, false,
				fmt.Errorf("%w: circuit open", domainErrors.ErrGatewayUnavailable))
		}
		c.metrics.GatewayRequests.WithLabelValues(op, "error").Inc()
		c.metrics.CircuitBreakerRequests.WithLabelValues("gateway", "failure").Inc()
		return nil, err
	}
	c.metrics.GatewayRequests.WithLabelValues(op, "success").Inc()
	c.metrics.CircuitBreakerRequests.WithLabelValues("gateway", "success").Inc()
	return resp, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, op, method, path string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domainErrors.NewGatewayError(op, 0, false, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyTransportError(op, err)
	}

	switch code := httpResp.StatusCode; {
	case code >= 200 && code < 300:
		return &response{statusCode: code, location: httpResp.Header.Get("Location"), body: data}, nil
	case code == http.StatusTooManyRequests || code >= 500:
		return nil, domainErrors.NewGatewayError(op, code, true,
			fmt.Errorf("%w: %s", domainErrors.ErrGatewayUnavailable, snippet(data)))
	default:
		return nil, domainErrors.NewGatewayError(op, code, false,
			fmt.Errorf("%w: %s", domainErrors.ErrGatewayRejected, snippet(data)))
	}
}

func classifyTransportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domainErrors.NewGatewayError(op, 0, true, fmt.Errorf("%w: %v", domainErrors.ErrGatewayTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return domainErrors.NewGatewayError(op, 0, false, err)
	}
	return domainErrors.NewGatewayError(op, 0, true, fmt.Errorf("%w: %v", domainErrors.ErrGatewayUnavailable, err))
}

func isRetryable(err error) bool {
	var gwErr *domainErrors.GatewayError
	return errors.As(err, &gwErr) && gwErr.Retryable
}

func lastSegment(location string) string {
	location = strings.TrimRight(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
