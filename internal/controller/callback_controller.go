package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/infrastructure/gateway"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/cassiomorais/studiopay/internal/service"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type CallbackVerifier interface {
	VerifyCallback(rawBody []byte, signature string) (*gateway.CallbackEvent, error)
}

type CallbackReconciler interface {
	HandleCallback(ctx context.Context, event gateway.CallbackEvent) (*service.ReconcileResult, error)
}

// CallbackController receives provider callbacks. Every verified callback
// is acknowledged with 200 whatever its business outcome, so the provider
// stops retrying; only signature failures are rejected.
type CallbackController struct {
	verifier   CallbackVerifier
	reconciler CallbackReconciler
	logger     zerolog.Logger
}

func NewCallbackController(verifier CallbackVerifier, reconciler CallbackReconciler, logger zerolog.Logger) *CallbackController {
	return &CallbackController{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     observability.Component(logger, "callback_controller"),
	}
}

func (c *CallbackController) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("body", "unreadable or too large"))
		return
	}

	event, err := c.verifier.VerifyCallback(body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidSignature) {
			observability.SecurityEvent(c.logger).
				Err(err).
				Str("remote_addr", r.RemoteAddr).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("callback signature rejected")
		}
		writeError(w, err)
		return
	}

	result, err := c.reconciler.HandleCallback(r.Context(), *event)
	if err != nil {
		c.logger.Error().Err(err).Str("reference", event.Reference).Msg("callback reconciliation failed")
		writeError(w, err)
		return
	}

	resp := CallbackResponse{Outcome: string(result.Outcome)}
	if result.Payment != nil {
		resp.Status = string(result.Payment.Status)
	}
	writeJSON(w, http.StatusOK, resp)
}
