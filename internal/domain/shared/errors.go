// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "session", "prescription", "recordstore"
	Op      string // Operation that failed, e.g., "Flush", "Advance"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Session domain errors
var (
	ErrSessionNotFound      = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionClosed        = NewDomainError("session", "Mutate", ErrInvalidState, "session already closed")
	ErrInvalidStudentID     = NewDomainError("session", "Validate", ErrInvalidID, "invalid student ID")
	ErrInvalidActivityID    = NewDomainError("session", "Validate", ErrInvalidID, "invalid activity ID")
	ErrInvalidCycle         = NewDomainError("session", "Validate", ErrValueOutOfRange, "cycle must be positive")
	ErrUnknownStage         = NewDomainError("session", "Advance", ErrInvalidInput, "unknown stage")
	ErrSessionAlreadyClosed = NewDomainError("session", "Complete", ErrAlreadyProcessed, "session already completed")
)

// Prescription domain errors
var (
	ErrInvalidScore    = NewDomainError("prescription", "Validate", ErrValueOutOfRange, "score must be between 0 and 10")
	ErrUnknownCategory = NewDomainError("prescription", "Validate", ErrInvalidInput, "unknown category")
	ErrEmptyCatalog    = NewDomainError("prescription", "Compute", ErrEmptyValue, "activity catalog is empty")
)

// Record store errors
var (
	ErrRecordNotFound          = NewDomainError("recordstore", "Find", ErrNotFound, "record not found")
	ErrRecordStoreUnavailable  = NewDomainError("recordstore", "Request", ErrServiceUnavailable, "record store is unavailable")
	ErrRecordStoreRateLimited  = NewDomainError("recordstore", "Request", ErrRateLimited, "record store rate limit exceeded")
	ErrRecordStoreTimeout      = NewDomainError("recordstore", "Request", ErrTimeout, "record store request timeout")
	ErrRecordStoreBadResponse  = NewDomainError("recordstore", "Parse", ErrInvalidFormat, "invalid response from record store")
	ErrMalformedRecordRequest  = NewDomainError("recordstore", "Validate", ErrInvalidInput, "malformed record request")
	ErrProgressAlreadyRecorded = NewDomainError("progress", "Create", ErrAlreadyExists, "progress already recorded for this attempt")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried. Malformed-input
// failures are deliberately excluded: retrying them can never succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
