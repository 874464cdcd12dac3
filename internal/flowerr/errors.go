package flowerr

import (
	"errors"
	"fmt"
)

var (
	// Frame/bus errors
	ErrFrameClosed         = errors.New("frame was closed before completion")
	ErrPopupBlocked        = errors.New("popup failed to open")
	ErrFrameTornDown       = errors.New("frame service already torn down")
	ErrFrameNotInitialized = errors.New("frame service not initialized")
	ErrFrameAlreadyOpen    = errors.New("frame already open")
	ErrChannelClosed       = errors.New("channel bus is torn down")

	// Payment context errors
	ErrContextNotFound   = errors.New("payment context not found")
	ErrContextTerminal   = errors.New("payment context already terminal")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPollerTornDown    = errors.New("poller already torn down")
	ErrFlowInProgress    = errors.New("desktop flow already in progress")

	// Relay errors
	ErrChannelClaimed  = errors.New("channel already claimed by another owner")
	ErrClaimNotHeld    = errors.New("channel claim not held")
	ErrChannelNotFound = errors.New("channel not found")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// Reason classifies why a payment flow settled unsuccessfully.
type Reason string

const (
	ReasonCustomerCanceled Reason = "CUSTOMER_CANCELED"
	ReasonUnknownError     Reason = "UNKNOWN_ERROR"
	ReasonTimeout          Reason = "TIMEOUT"
	ReasonExpired          Reason = "EXPIRED"
	ReasonFailed           Reason = "FAILED"
	ReasonCanceled         Reason = "CANCELED"
)

// Recoverable reports whether the caller may retry the flow by requesting a
// fresh payment context.
func (r Reason) Recoverable() bool {
	return r == ReasonTimeout
}

// FlowError is the single rejection shape exposed to flow callers.
// AllowUIToHandleError marks failures the embedded UI has already rendered;
// callers should stay silent for those instead of duplicating the message.
type FlowError struct {
	Reason               Reason
	AllowUIToHandleError bool
	Err                  error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flow terminated: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("flow terminated: %s", e.Reason)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a FlowError for the given reason.
func NewFlowError(reason Reason, allowUI bool, err error) *FlowError {
	return &FlowError{
		Reason:               reason,
		AllowUIToHandleError: allowUI,
		Err:                  err,
	}
}

// AsFlowError unwraps err into a *FlowError if it carries one.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ValidationError represents a validation error on caller-supplied options.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
