// Copyright 2025 James Ross
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors covering the taxonomy every component reports through:
// callers dispatch on these with errors.Is, never on string matching.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness or
	// state invariant (duplicate event type name, concurrent update race).
	ErrConflict = errors.New("conflict")

	// ErrValidationFailure is returned when caller-supplied data fails
	// structural or semantic validation before any backend is touched.
	ErrValidationFailure = errors.New("validation failure")

	// ErrTransientBackend is returned for failures expected to clear on
	// retry: connection resets, timeouts, pool exhaustion.
	ErrTransientBackend = errors.New("transient backend failure")

	// ErrPermanentBackend is returned for failures retrying cannot fix:
	// malformed SQL, constraint violations unrelated to conflict, schema
	// drift.
	ErrPermanentBackend = errors.New("permanent backend failure")

	// ErrCacheMiss is returned by a cache layer read when no layer holds
	// the key; it is not logged as an error by callers that treat it as
	// a normal outcome.
	ErrCacheMiss = errors.New("cache miss")

	// ErrAnalyticsDegraded names the state where real-time aggregation is
	// unavailable and the historical path also could not serve a request.
	// ErrorCode maps it to ANALYTICS_DEGRADED; no code in this repository
	// returns it, the analytics service facade passes backend errors
	// through unchanged.
	ErrAnalyticsDegraded = errors.New("analytics degraded")

	// ErrCircuitBreakerOpen is returned when a protected resource's
	// breaker is open and the call was rejected without being attempted.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// BackendError wraps a failure from a specific named backend/operation pair.
type BackendError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Backend, e.Operation, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewBackendError(backend, operation string, err error) *BackendError {
	return &BackendError{Backend: backend, Operation: operation, Err: err}
}

// ValidationError carries the offending field for ErrValidationFailure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailure }

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConflictError carries the entity/key that collided for ErrConflict.
type ConflictError struct {
	Entity string
	Key    string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s", e.Entity, e.Key)
}

func (e *ConflictError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConflict
}

// Is makes errors.Is(err, ErrConflict) hold even when Err carries the
// underlying driver error.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func NewConflictError(entity, key string, err error) *ConflictError {
	return &ConflictError{Entity: entity, Key: key, Err: err}
}

// IsRetryable reports whether a retry of the same operation might succeed.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrTransientBackend):
		return true
	case errors.Is(err, ErrCircuitBreakerOpen):
		return false
	case errors.Is(err, ErrPermanentBackend):
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrValidationFailure):
		return false
	default:
		var be *BackendError
		if errors.As(err, &be) {
			return IsRetryable(be.Err)
		}
		return false
	}
}

// IsPermanent reports whether retrying cannot possibly change the outcome.
func IsPermanent(err error) bool {
	switch {
	case errors.Is(err, ErrPermanentBackend), errors.Is(err, ErrValidationFailure),
		errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return true
	default:
		return false
	}
}

// IsTemporary reports a failure that is retryable and not permanent. No code
// in this repository calls it; the seeder classifies through seeder.Classify,
// which builds on IsRetryable.
func IsTemporary(err error) bool {
	return !IsPermanent(err) && IsRetryable(err)
}

// ErrorCode returns a stable machine-readable code for logging/metrics labels.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrValidationFailure):
		return "VALIDATION_FAILURE"
	case errors.Is(err, ErrTransientBackend):
		return "TRANSIENT_BACKEND"
	case errors.Is(err, ErrPermanentBackend):
		return "PERMANENT_BACKEND"
	case errors.Is(err, ErrCacheMiss):
		return "CACHE_MISS"
	case errors.Is(err, ErrAnalyticsDegraded):
		return "ANALYTICS_DEGRADED"
	case errors.Is(err, ErrCircuitBreakerOpen):
		return "CIRCUIT_BREAKER_OPEN"
	default:
		var be *BackendError
		if errors.As(err, &be) {
			return "BACKEND_ERROR"
		}
		return "UNKNOWN_ERROR"
	}
}
