package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a broker resource (queue, exchange) is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when caller input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrServiceUnavailable is returned when the broker cannot be reached.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// NotFoundError represents a missing broker resource.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{
			code:    CodeNotFound,
			message: fmt.Sprintf("%s not found", resource),
		},
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// PreconditionError is returned when the broker refuses an operation because
// the existing resource was declared with different arguments, or when an
// object is used outside of the state it allows.
type PreconditionError struct {
	*BaseError
	Resource string
}

// NewPreconditionError creates a new precondition error.
func NewPreconditionError(resource, message string) *PreconditionError {
	return &PreconditionError{
		BaseError: &BaseError{
			code:    CodeFailedPrecondition,
			message: message,
		},
		Resource: resource,
	}
}

// InternalError is what Wrap produces for errors without a code.
type InternalError struct {
	*BaseError
}

// ServiceError represents a failure reported by the broker while it was reachable.
type ServiceError struct {
	*BaseError
	Service   string
	Operation string
}

// NewServiceError creates a new service error.
func NewServiceError(service, operation string, cause error) *ServiceError {
	message := fmt.Sprintf("%s service error", service)
	if operation != "" {
		message = fmt.Sprintf("%s: %s failed", service, operation)
	}
	return &ServiceError{
		BaseError: &BaseError{
			code:    CodeServiceUnavailable,
			message: message,
			cause:   cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// ConnectionError means the broker could not be reached: dialing failed, the
// connection is closed, or a channel could not be opened on it.
type ConnectionError struct {
	*BaseError
	Operation string
}

// NewConnectionError creates a new connection error.
func NewConnectionError(operation string, cause error) *ConnectionError {
	message := "broker connection unavailable"
	if operation != "" {
		message = fmt.Sprintf("broker connection unavailable: %s", operation)
	}
	return &ConnectionError{
		BaseError: &BaseError{
			code:    CodeUnavailable,
			message: message,
			cause:   cause,
		},
		Operation: operation,
	}
}

// CallbackError wraps a failure returned by an application message handler.
// The message that triggered it has not been acknowledged.
type CallbackError struct {
	*BaseError
	SubscriberID string
	Topic        string
}

// NewCallbackError creates a new callback error.
func NewCallbackError(subscriberID, topic string, cause error) *CallbackError {
	return &CallbackError{
		BaseError: &BaseError{
			code:    CodeCallback,
			message: fmt.Sprintf("message handler failed for %s@%s", subscriberID, topic),
			cause:   cause,
		},
		SubscriberID: subscriberID,
		Topic:        topic,
	}
}

// TimeoutError represents a timeout error.
type TimeoutError struct {
	*BaseError
	Operation string
	Duration  string
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation, duration string) *TimeoutError {
	message := "operation timeout"
	if operation != "" {
		message = fmt.Sprintf("%s timeout", operation)
	}
	return &TimeoutError{
		BaseError: &BaseError{
			code:    CodeTimeout,
			message: message,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise, it creates an InternalError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
		}
	}

	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   err,
		},
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
