package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRegistry        = "REGISTRY_ERROR"
	ErrCodeVersionMismatch = "VERSION_MISMATCH"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
)

// VersionMismatchPrefix starts the message of every version mismatch error. Clients match on it
// to detect that they and the service disagree on the strategy set.
const VersionMismatchPrefix = "STRATEGY_VERSION_MISMATCH:"

// Sentinel errors
var (
	ErrNotFound            = errors.New("not found")
	ErrEmptySpecification  = errors.New("specification has no searchable fields")
	ErrRecordNotFound      = errors.New("registry record not found")
	ErrVersionMismatch     = errors.New("strategy version mismatch")
	ErrVersionConflict     = errors.New("algorithm version state changed concurrently")
	ErrCircuitOpen         = errors.New("registry circuit breaker open")
	ErrInvalidStoreBackend = errors.New("invalid version store backend")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// VersionMismatchError is returned when a caller declares a strategy version the service is not running.
type VersionMismatchError struct {
	Declared int
	Current  int
}

// Error implements the error interface
func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s declared version %d, current version %d", VersionMismatchPrefix, e.Declared, e.Current)
}

// Unwrap lets errors.Is match ErrVersionMismatch.
func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// IsVersionMismatchMessage reports whether a message carries the version mismatch prefix.
func IsVersionMismatchMessage(msg string) bool {
	return strings.HasPrefix(msg, VersionMismatchPrefix)
}

// RegistryError is a network or service failure talking to the registry.
type RegistryError struct {
	Operation  string
	StatusCode int
	Message    string
	Retryable  bool
	Underlying error
}

// Error implements the error interface
func (e *RegistryError) Error() string {
	msg := fmt.Sprintf("registry %s failed", e.Operation)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

// Unwrap supports error unwrapping
func (e *RegistryError) Unwrap() error {
	return e.Underlying
}

// SupersededError signals that the requested record was merged into another one.
type SupersededError struct {
	Identifier  string
	Replacement string
}

// Error implements the error interface
func (e *SupersededError) Error() string {
	if e.Replacement == "" {
		return fmt.Sprintf("record %s has been superseded", e.Identifier)
	}
	return fmt.Sprintf("record %s has been superseded by %s", e.Identifier, e.Replacement)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsRetryable reports whether the error is a registry failure worth retrying by the calling tier.
func IsRetryable(err error) bool {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
