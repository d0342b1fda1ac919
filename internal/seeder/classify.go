// Copyright 2025 James Ross
package seeder

import (
	"errors"
	"strings"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/lib/pq"
)

// Outcome is the two-way retry dispatch the bulk insert loop acts on.
type Outcome int

const (
	Permanent Outcome = iota
	Transient
)

// Classify maps a batch-insert error to Transient/Permanent, preferring the
// typed *pq.Error class codes when available and falling back to the
// original seeder's string-matching heuristic otherwise. The underlying
// rule is apperr.IsRetryable; Classify exists so the insert loop never has
// to import pq or recall the magic substrings itself.
func Classify(err error) Outcome {
	if err == nil {
		return Permanent
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if apperr.IsRetryable(classifyPQ(pqErr)) {
			return Transient
		}
		return Permanent
	}
	if apperr.IsRetryable(err) {
		return Transient
	}
	if isConnectionClassMessage(err.Error()) {
		return Transient
	}
	return Permanent
}

func classifyPQ(pqErr *pq.Error) error {
	switch pqErr.Code.Class() {
	case "08", "53", "40":
		return apperr.ErrTransientBackend
	default:
		return apperr.ErrPermanentBackend
	}
}

// isConnectionClassMessage reports whether err's text matches the
// connection-exhaustion/reset family the original binary singles out for
// longer backoff and a post-sleep health check.
func isConnectionClassMessage(msg string) bool {
	return strings.Contains(msg, "pool timed out") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// IsConnectionClass reports whether err belongs to the connection-exhaustion
// family that gets the longer ConnectionBackoff and a recovery health check,
// as opposed to a generic transient error that gets the shorter Backoff.
func IsConnectionClass(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	return isConnectionClassMessage(err.Error())
}
