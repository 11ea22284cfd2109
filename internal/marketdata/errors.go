package marketdata

import (
	"errors"
	"fmt"
)

// Per-source unavailability sentinels. These are transient and expected:
// the resolver converts them into continue-to-next-stage signals, and they
// never escape the resolver boundary.
var (
	ErrStoreUnavailable    = errors.New("durable store unavailable")
	ErrBackendUnavailable  = errors.New("primary backend unavailable")
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
)

// ErrAllSourcesExhausted is terminal: every stage of the fallback chain
// failed and synthetic fallback is disabled by policy.
var ErrAllSourcesExhausted = errors.New("all data sources exhausted")

// ValidationError rejects malformed input before any resolution attempt.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-level validation failure with a
// human-readable suggestion for the caller.
func NewValidationError(field, message, suggestion string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Suggestion: suggestion}
}

// SourceUnavailable wraps an adapter-level cause in the matching sentinel so
// the resolver can branch on errors.Is while logs keep the root cause.
func SourceUnavailable(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
