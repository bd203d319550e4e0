package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateEvent signals that the identity was already delivered within
// its dedup window. It is a normal outcome, not a failure: the caller needs
// no further action.
var ErrDuplicateEvent = errors.New("duplicate event")

// ValidationError reports malformed or insufficient input. Never retried;
// surfaced to the caller immediately.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitError tells the caller to back off, with a retry-after hint.
type RateLimitError struct {
	Identifier string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Identifier, e.RetryAfter)
}

// ProviderError wraps a geo or channel call failure. Absorbed internally
// and reflected only in per-channel results, never surfaced as a pipeline
// failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
