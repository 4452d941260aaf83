package errors

import (
	stdErrors "errors"
	"fmt"
	"time"
)

// RateLimitError represents a declared rate limit from any provider. It is
// a distinguished transient failure: retriable, never cached, and carries
// the provider-advised wait when one could be extracted.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// NewRateLimitError creates a new RateLimitError with the given message.
func NewRateLimitError(message string) *RateLimitError {
	return &RateLimitError{Message: message}
}

// NewRateLimitErrorWithRetry creates a RateLimitError that carries the
// wait the provider asked for.
func NewRateLimitErrorWithRetry(message string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Message: message, RetryAfter: retryAfter}
}

// IsRateLimitError reports whether err is a RateLimitError (even when wrapped).
func IsRateLimitError(err error) bool {
	var rateErr *RateLimitError
	return stdErrors.As(err, &rateErr)
}

// RetryAfter extracts the provider-advised wait from err, or zero when err
// is not a rate limit or carried no explicit wait.
func RetryAfter(err error) time.Duration {
	var rateErr *RateLimitError
	if stdErrors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
