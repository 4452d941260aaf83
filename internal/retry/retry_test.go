package retry

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
)

func recordingSleep(slept *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestSucceedsFirstTry(t *testing.T) {
	var slept []time.Duration
	p := Policy{Provider: "loc", Delays: []time.Duration{5 * time.Second}, Sleep: recordingSleep(&slept)}

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
	if len(slept) != 0 {
		t.Errorf("slept %v on a clean first try", slept)
	}
}

func TestTransientFailuresConsumeDelaySequence(t *testing.T) {
	var slept []time.Duration
	p := Policy{
		Provider: "loc",
		Delays:   []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		Sleep:    recordingSleep(&slept),
	}

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.NewTransientError("loc", "connection reset", nil)
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "recovered" || calls != 3 {
		t.Errorf("got %q after %d calls, want recovered after 3", got, calls)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 15*time.Second {
		t.Errorf("slept %v, want [5s 15s]", slept)
	}
}

func TestPermanentFailureShortCircuits(t *testing.T) {
	var slept []time.Duration
	p := Policy{Provider: "googlebooks", Delays: []time.Duration{5 * time.Second}, Sleep: recordingSleep(&slept)}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", apperrors.NewPermanentError("googlebooks", "no record found", nil)
	})
	if !apperrors.IsPermanent(err) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent failure retried %d times", calls)
	}
	if len(slept) != 0 {
		t.Errorf("slept %v before giving up on a permanent failure", slept)
	}
}

func TestExhaustionReturnsLastError(t *testing.T) {
	var slept []time.Duration
	p := Policy{Provider: "loc", Delays: []time.Duration{time.Second, 2 * time.Second}, Sleep: recordingSleep(&slept)}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", apperrors.NewTransientError("loc", "still down", nil)
	})
	if err == nil {
		t.Fatal("expected the last transient error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("made %d attempts, want 3 (initial + 2 retries)", calls)
	}
	if len(slept) != 2 {
		t.Errorf("slept %v, want 2 sleeps", slept)
	}
}

func TestRateLimitAddsAdvisedWait(t *testing.T) {
	var slept []time.Duration
	p := Policy{Provider: "loc", Delays: []time.Duration{5 * time.Second}, Sleep: recordingSleep(&slept)}

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", apperrors.NewRateLimitErrorWithRetry("loc says slow down", 2*time.Minute)
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Do = (%q, %v)", got, err)
	}
	// The advised wait stacks on top of the scheduled delay.
	if len(slept) != 1 || slept[0] != 2*time.Minute+5*time.Second {
		t.Errorf("slept %v, want [2m5s]", slept)
	}
}

func TestCancelledSleepPropagates(t *testing.T) {
	p := Policy{
		Provider: "loc",
		Delays:   []time.Duration{time.Second},
		Sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}

	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		return "", apperrors.NewTransientError("loc", "down", nil)
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
