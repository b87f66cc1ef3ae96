package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serverOperation = "http.server"

// Tracing starts a server span per request. Once chi has routed the request
// otelhttp renames the span to "METHOD /route/{pattern}".
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serverOperation, otelhttp.WithSpanNameFormatter(spanName))
	}
}

// spanName names a span after the matched route, falling back to the
// operation before routing or outside chi.
func spanName(operation string, r *http.Request) string {
	if pattern := RoutePattern(r); pattern != "" {
		return r.Method + " " + pattern
	}
	return operation
}

// RoutePattern returns the matched chi pattern, or "" outside chi.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
