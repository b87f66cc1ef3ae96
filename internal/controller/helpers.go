package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
	{domainErrors.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domainErrors.ErrBookingNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrGiftCardNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrJobNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrInvalidMethod, http.StatusBadRequest, "invalid_method"},
	{domainErrors.ErrInvalidProductType, http.StatusBadRequest, "invalid_product_type"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{domainErrors.ErrAlreadyFulfilled, http.StatusConflict, "already_fulfilled"},
	{domainErrors.ErrNotPaid, http.StatusConflict, "not_paid"},
	{domainErrors.ErrJobNotFailed, http.StatusConflict, "job_not_failed"},
	{domainErrors.ErrInvalidTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
	{domainErrors.ErrGatewayTimeout, http.StatusBadGateway, "gateway_timeout"},
	{domainErrors.ErrGatewayRejected, http.StatusBadGateway, "gateway_rejected"},
	{domainErrors.ErrFulfillmentFailed, http.StatusUnprocessableEntity, "fulfillment_failed"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps err to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "validation_error"
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}

	var gatewayErr *domainErrors.GatewayError
	if errors.As(err, &gatewayErr) {
		return http.StatusBadGateway, "gateway_error"
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		return http.StatusUnprocessableEntity, domainErr.Code
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unhandled error in handler")
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Namespace(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// uuidParam parses the named URL parameter as a UUID.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

// limitParam reads ?limit=, returning 0 when absent.
func limitParam(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domainErrors.NewValidationError("limit", "must be a non-negative integer")
	}
	return n, nil
}
