package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTransientBackend))
	assert.False(t, IsRetryable(ErrPermanentBackend))
	assert.False(t, IsRetryable(ErrCircuitBreakerOpen))
	assert.False(t, IsRetryable(ErrNotFound))

	wrapped := NewBackendError("postgres", "insert_event", ErrTransientBackend)
	assert.True(t, IsRetryable(wrapped))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrValidationFailure))
	assert.True(t, IsPermanent(ErrConflict))
	assert.False(t, IsPermanent(ErrTransientBackend))
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ErrNotFound, "NOT_FOUND"},
		{ErrConflict, "CONFLICT"},
		{ErrValidationFailure, "VALIDATION_FAILURE"},
		{ErrTransientBackend, "TRANSIENT_BACKEND"},
		{ErrPermanentBackend, "PERMANENT_BACKEND"},
		{ErrCacheMiss, "CACHE_MISS"},
		{ErrAnalyticsDegraded, "ANALYTICS_DEGRADED"},
		{fmt.Errorf("wrapped: %w", ErrConflict), "CONFLICT"},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, ErrorCode(c.err))
	}
}

func TestConflictErrorUnwraps(t *testing.T) {
	err := NewConflictError("event_type", "click", nil)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := NewValidationError("timestamp", "not-a-time", "must be RFC3339")
	assert.True(t, errors.Is(err, ErrValidationFailure))
	assert.Contains(t, err.Error(), "timestamp")
}
