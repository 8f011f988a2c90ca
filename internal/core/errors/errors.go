// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
)

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrThemeNotFound indicates a research theme does not exist.
	ErrThemeNotFound = fmt.Errorf("research theme %w", ErrNotFound)

	// ErrClaimNotFound indicates a validation claim does not exist.
	ErrClaimNotFound = fmt.Errorf("validation claim %w", ErrNotFound)
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoNarrative indicates a theme has no text to extract claims from.
	ErrNoNarrative = errors.New("theme has no narrative")

	// ErrReadOnlyViolation indicates a statement other than a read-only query was submitted.
	ErrReadOnlyViolation = errors.New("only read-only SELECT queries are allowed")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
