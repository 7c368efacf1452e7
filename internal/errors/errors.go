// Package errors provides the error taxonomy shared by the console's network and action layers.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUnauthorized     = errors.New("unauthorized: session cleared")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInFlight         = errors.New("action already in flight for target")
	ErrTerminalOrder    = errors.New("order is already in a terminal state")
	ErrPositionClosed   = errors.New("position is already closed")
	ErrNoOpenOrders     = errors.New("no open orders")
	ErrStrategyActive   = errors.New("strategy is active")
	ErrStrategyInactive = errors.New("strategy is not active")
	ErrJobFinished      = errors.New("job already finished")
	ErrStaleSnapshot    = errors.New("stale snapshot")
	ErrInputValidation  = errors.New("input validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// TransportError wraps a failure to reach the backend at all (connection refused,
// timeout, undecodable body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s]: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// APIError is an application-level failure: the backend answered with status=false.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error [%s] (%d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("api error [%s] (%d): %s", e.Op, e.StatusCode, e.Message)
}

// NewAPIError creates a new APIError.
func NewAPIError(op string, statusCode int, message string) *APIError {
	return &APIError{Op: op, StatusCode: statusCode, Message: message}
}

// ValidationError represents a client-side form validation failure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// PreconditionError blocks an action before any network call is made.
type PreconditionError struct {
	Action string
	Target string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s [%s] not allowed: %v", e.Action, e.Target, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// NewPreconditionError creates a new PreconditionError.
func NewPreconditionError(action, target string, err error) *PreconditionError {
	return &PreconditionError{Action: action, Target: target, Err: err}
}

// UserMessage returns the text an operator should see for err. Server-supplied
// messages and validation messages are shown verbatim; anything else collapses
// to fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Message
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Session expired, please log in again"
	}
	var preErr *PreconditionError
	if errors.As(err, &preErr) {
		return preErr.Error()
	}
	return fallback
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need only this package.
func New(text string) error {
	return errors.New(text)
}
