package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestClassification(t *testing.T) {
	transient := NewTransientError("loc", "connection reset", nil)
	permanent := NewPermanentError("loc", "no record found", nil)
	rate := NewRateLimitError("loc: HTTP 429 too many requests")

	if IsPermanent(transient) {
		t.Error("transient error classified as permanent")
	}
	if !IsPermanent(permanent) {
		t.Error("permanent error not classified as permanent")
	}
	if !IsTransient(transient) {
		t.Error("transient error not classified as transient")
	}
	if !IsTransient(rate) {
		t.Error("rate limit should be transient")
	}
	if !IsRateLimitError(rate) {
		t.Error("rate limit error not detected")
	}
}

func TestUnknownErrorsAreTransient(t *testing.T) {
	// An unclassified failure must never be cached as final.
	plain := fmt.Errorf("something odd")
	if IsPermanent(plain) {
		t.Error("unclassified error treated as permanent")
	}
	if !IsTransient(plain) {
		t.Error("unclassified error should be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetching: %w", NewPermanentError("googlebooks", "HTTP 404", nil))
	if !IsPermanent(wrapped) {
		t.Error("wrapped permanent error not detected")
	}

	wrappedRate := fmt.Errorf("fetching: %w", NewRateLimitErrorWithRetry("slow down", 2*time.Minute))
	if got := RetryAfter(wrappedRate); got != 2*time.Minute {
		t.Errorf("RetryAfter = %v, want 2m", got)
	}
}

func TestRetryAfterDefaultsToZero(t *testing.T) {
	if got := RetryAfter(NewTransientError("loc", "timeout", nil)); got != 0 {
		t.Errorf("RetryAfter on non-rate-limit = %v, want 0", got)
	}
	if got := RetryAfter(NewRateLimitError("no advice")); got != 0 {
		t.Errorf("RetryAfter without advice = %v, want 0", got)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		rateLimit bool
		permanent bool
	}{
		{429, true, false},
		{500, false, false},
		{503, false, false},
		{404, false, true},
		{403, false, true},
	}
	for _, tt := range tests {
		err := FromHTTPStatus("openlibrary", tt.status)
		if got := IsRateLimitError(err); got != tt.rateLimit {
			t.Errorf("status %d: IsRateLimitError = %v, want %v", tt.status, got, tt.rateLimit)
		}
		if got := IsPermanent(err); got != tt.permanent {
			t.Errorf("status %d: IsPermanent = %v, want %v", tt.status, got, tt.permanent)
		}
	}
}

func TestRateLimitErrorMessage(t *testing.T) {
	err := NewRateLimitErrorWithRetry("loc declared a limit", 90*time.Second)
	want := "loc declared a limit (retry after 1m30s)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
