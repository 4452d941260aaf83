// Package errors defines the provider failure taxonomy. Transient failures
// (timeouts, connection errors, 5xx, declared rate limits) are retried and
// never cached; permanent failures (other 4xx, garbled responses, explicit
// "no record") are cached so an unrecoverable query is not hammered again.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// TransientError represents a provider failure worth retrying.
type TransientError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// NewTransientError creates a TransientError for the named provider.
func NewTransientError(provider, message string, cause error) *TransientError {
	return &TransientError{Provider: provider, Message: message, Cause: cause}
}

// PermanentError represents a provider failure that retrying cannot fix.
type PermanentError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// NewPermanentError creates a PermanentError for the named provider.
func NewPermanentError(provider, message string, cause error) *PermanentError {
	return &PermanentError{Provider: provider, Message: message, Cause: cause}
}

// IsPermanent reports whether err is a PermanentError (even when wrapped).
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return stdErrors.As(err, &permErr)
}

// IsTransient reports whether err should be retried. Rate limits count as
// transient; anything not explicitly classified is treated as transient so
// an unknown failure is never cached as final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

// FromHTTPStatus classifies a non-200 provider response. 429 is a declared
// rate limit, 5xx is transient, everything else in the 4xx range is
// permanent.
func FromHTTPStatus(provider string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(fmt.Sprintf("%s: HTTP 429 too many requests", provider))
	case status >= 500:
		return NewTransientError(provider, fmt.Sprintf("HTTP %d", status), nil)
	default:
		return NewPermanentError(provider, fmt.Sprintf("HTTP %d", status), nil)
	}
}
