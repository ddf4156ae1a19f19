package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data or a stale state transition
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeTransientAdapter covers timeouts, 5xx, rate limits and open circuits
	ErrorTypeTransientAdapter ErrorType = "TRANSIENT_ADAPTER"

	// ErrorTypeMalformedResponse is a successful adapter call whose content is unusable
	ErrorTypeMalformedResponse ErrorType = "MALFORMED_ADAPTER_RESPONSE"

	// ErrorTypeUnrecoverableInput means the audio is missing or unreadable; re-record
	ErrorTypeUnrecoverableInput ErrorType = "UNRECOVERABLE_INPUT"

	// ErrorTypeScopeViolation means a retrieval result belonged to another patient
	ErrorTypeScopeViolation ErrorType = "SCOPE_VIOLATION"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{Type: ErrorTypeConflict, Message: message}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Type: ErrorTypeUnauthorized, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeExternal, Message: message, Err: err}
}

// NewTransientError wraps a retryable adapter failure
func NewTransientError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeTransientAdapter, Message: message, Err: err}
}

// NewMalformedResponseError wraps an adapter response that could not be used
func NewMalformedResponseError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeMalformedResponse, Message: message, Err: err}
}

// NewUnrecoverableInputError creates an error for audio that cannot be processed
func NewUnrecoverableInputError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeUnrecoverableInput, Message: message, Err: err}
}

// NewScopeViolationError creates a cross-patient leak error
func NewScopeViolationError(message string) *AppError {
	return &AppError{Type: ErrorTypeScopeViolation, Message: message}
}

// TypeOf returns the type of the first AppError in the chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether any AppError in the chain has the given type.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsTransient reports whether err should be retried within a pipeline stage.
func IsTransient(err error) bool {
	return IsType(err, ErrorTypeTransientAdapter)
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}
