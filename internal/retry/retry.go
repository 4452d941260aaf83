// Package retry wraps a source adapter call in a bounded, classified retry
// loop: a fixed ascending delay sequence for transient failures, an
// immediate stop for permanent ones, and an extra provider-advised sleep
// when a rate limit is detected mid-sequence.
package retry

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
)

// SleepFunc sleeps for d or returns early with the context's error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is the per-provider retry budget. Delays is the fixed ascending
// backoff sequence; len(Delays)+1 is the total attempt count.
type Policy struct {
	Provider string
	Delays   []time.Duration
	Sleep    SleepFunc // nil means a real context-aware sleep
}

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn under the policy. Transient failures consume one delay each;
// after the sequence is exhausted the last failure is returned as terminal.
// Permanent failures short-circuit immediately. A rate-limit failure whose
// error carries an advised wait sleeps that long on top of the scheduled
// delay, against the same attempt budget.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = realSleep
	}

	var lastErr error
	for attempt := 0; attempt <= len(p.Delays); attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if apperrors.IsPermanent(err) {
			return zero, err
		}
		if attempt == len(p.Delays) {
			break
		}

		delay := p.Delays[attempt]
		if extra := apperrors.RetryAfter(err); extra > 0 {
			delay += extra
		}
		slog.Warn("Provider call failed, retrying",
			"provider", p.Provider,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
