package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Pacer spreads a batch run's queries out over time so a bulk import does
// not slam every provider at once. This is cross-query pacing on top of the
// per-provider Governors, not a substitute for them.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing queriesPerMinute query starts, with a
// burst of one so starts stay evenly spaced. Zero or negative disables
// pacing.
func NewPacer(queriesPerMinute int) *Pacer {
	if queriesPerMinute <= 0 {
		return &Pacer{}
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(float64(queriesPerMinute)/60.0), 1),
	}
}

// Wait blocks until the next query may start, or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("batch pacing wait: %w", err)
	}
	return nil
}
