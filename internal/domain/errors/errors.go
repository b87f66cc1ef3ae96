package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment errors
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateReference = errors.New("duplicate payment reference")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrInvalidProductType = errors.New("invalid product type")
	ErrNotPaid            = errors.New("payment is not paid")

	// Staging errors
	ErrAlreadyStaged        = errors.New("pending order already staged")
	ErrPendingOrderNotFound = errors.New("pending order not found")

	// Fulfillment errors
	ErrAlreadyFulfilled  = errors.New("payment already fulfilled")
	ErrFulfillmentFailed = errors.New("fulfillment failed")
	ErrCourseNotFound    = errors.New("course not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrGiftCardNotFound  = errors.New("gift card not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyCancelled  = errors.New("already cancelled")
	ErrCustomerMissing   = errors.New("customer information missing")
	ErrDuplicateCode     = errors.New("gift card code already exists")

	// Gateway errors
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment rejected by gateway")
	ErrGatewayTimeout     = errors.New("payment gateway timeout")
	ErrInvalidSignature   = errors.New("invalid callback signature")

	// Job errors
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotClaimed  = errors.New("job is not in processing state")
	ErrJobNotFailed   = errors.New("job is not in failed state")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidPayload = errors.New("invalid job payload")
	ErrTransport      = errors.New("notification transport failed")
	ErrDuplicateJob   = errors.New("notification already queued for payment")

	// Document errors
	ErrDocumentNotFound = errors.New("document not found")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayError describes a failed call to the push-payment provider.
// Retryable is true for timeouts, transport failures and 5xx responses.
type GatewayError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new gateway error
func NewGatewayError(op string, statusCode int, retryable bool, err error) *GatewayError {
	return &GatewayError{Op: op, StatusCode: statusCode, Retryable: retryable, Err: err}
}

// TransportError wraps a mail delivery failure. It always matches ErrTransport.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// NewTransportError creates a new transport error
func NewTransportError(err error) *TransportError {
	return &TransportError{Err: err}
}

// FulfillmentError records a post-payment side effect that failed.
// The payment stays PAID; an operator has to reconcile manually.
type FulfillmentError struct {
	Reference string
	Stage     string
	Err       error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment of %s failed at %s: %v", e.Reference, e.Stage, e.Err)
}

func (e *FulfillmentError) Unwrap() []error {
	return []error{ErrFulfillmentFailed, e.Err}
}

// NewFulfillmentError creates a new fulfillment error
func NewFulfillmentError(reference, stage string, err error) *FulfillmentError {
	return &FulfillmentError{Reference: reference, Stage: stage, Err: err}
}
