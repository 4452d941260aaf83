// Package ratelimit gates outbound provider calls. Each provider gets one
// Governor enforcing two simultaneous constraints: a rolling-window request
// count and a minimum inter-call spacing, optionally tightened by quota
// information the provider itself advertises.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultFailoverThreshold is how long a predicted wait may get before the
// orchestrator is told to skip the provider for the current query.
const DefaultFailoverThreshold = 60 * time.Second

// Config holds the per-provider request contract.
type Config struct {
	// MaxRequestsPerWindow is the rolling-window request budget.
	MaxRequestsPerWindow int
	// Window is the rolling-window length.
	Window time.Duration
	// MinInterval is the minimum spacing between two requests.
	MinInterval time.Duration
	// FailoverThreshold caps acceptable waits; zero means the default.
	FailoverThreshold time.Duration
}

// Governor tracks request timestamps for one provider and answers whether
// the next call may proceed. All state is guarded by a single per-provider
// mutex; there is deliberately no global lock across providers.
type Governor struct {
	name string
	cfg  Config

	mu          sync.Mutex
	timestamps  []time.Time
	lastRequest time.Time
	remaining   int
	quotaKnown  bool
	quotaReset  time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects a time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleep injects the sleep used by Acquire, for deterministic tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// NewGovernor creates a Governor for the named provider.
func NewGovernor(name string, cfg Config, opts ...Option) *Governor {
	if cfg.FailoverThreshold <= 0 {
		cfg.FailoverThreshold = DefaultFailoverThreshold
	}
	g := &Governor{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Name returns the provider name this governor guards.
func (g *Governor) Name() string { return g.name }

// CanProceed reports whether a request may go out now and, if not, how
// long the caller should wait before re-checking. A false answer is not an
// error: the caller sleeps once and re-checks.
func (g *Governor) CanProceed() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	wait := g.requiredWaitLocked(g.now())
	return wait <= 0, wait
}

// RecordRequest notes that a call actually reached the network. Never
// called for cache hits.
func (g *Governor) RecordRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordLocked(g.now())
}

// ObserveServerQuota replaces the self-tracked estimate with what the
// provider's response headers declared.
func (g *Governor) ObserveServerQuota(remaining int, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remaining = remaining
	g.quotaKnown = true
	g.quotaReset = resetAt
	slog.Debug("Observed server quota", "provider", g.name, "remaining", remaining, "reset_at", resetAt)
}

// ObserveDeclaredLimit records a rate limit the provider declared in an
// error body rather than in headers: remaining quota is treated as zero
// until now+wait. A longer block already in effect is kept.
func (g *Governor) ObserveDeclaredLimit(wait time.Duration) {
	if wait <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	resetAt := g.now().Add(wait)
	if g.quotaKnown && g.remaining <= 0 && g.quotaReset.After(resetAt) {
		return
	}
	g.remaining = 0
	g.quotaKnown = true
	g.quotaReset = resetAt
	slog.Warn("Provider declared a rate limit", "provider", g.name, "until", resetAt)
}

// ShouldFailover tells the orchestrator to skip this provider for the
// current query: either the advertised quota is exhausted with a distant
// reset, or the self-estimate predicts a wait past the threshold.
func (g *Governor) ShouldFailover() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.quotaKnown && g.remaining <= 0 && g.quotaReset.After(now) {
		if wait := g.quotaReset.Sub(now); wait > g.cfg.FailoverThreshold {
			return true, wait
		}
	}
	if wait := g.requiredWaitLocked(now); wait > g.cfg.FailoverThreshold {
		return true, wait
	}
	return false, 0
}

// Acquire composes the check-sleep-recheck protocol: if blocked, it sleeps
// once for the indicated wait and re-checks. On approval the request slot
// is reserved under the same lock as the check, so two concurrent callers
// can never both pass the spacing check. Returns false when the provider
// should be treated as skipped for this query.
func (g *Governor) Acquire(ctx context.Context) (bool, error) {
	g.mu.Lock()
	now := g.now()
	if wait := g.requiredWaitLocked(now); wait > 0 {
		g.mu.Unlock()
		slog.Debug("Rate governor blocking", "provider", g.name, "wait", wait)
		if err := g.sleep(ctx, wait); err != nil {
			return false, err
		}
		g.mu.Lock()
		now = g.now()
		if g.requiredWaitLocked(now) > 0 {
			g.mu.Unlock()
			return false, nil
		}
	}
	g.recordLocked(now)
	g.mu.Unlock()
	return true, nil
}

// requiredWaitLocked prunes the window and returns how long until both
// constraints are satisfied; zero or negative means clear to go.
func (g *Governor) requiredWaitLocked(now time.Time) time.Duration {
	g.pruneLocked(now)

	var wait time.Duration
	if g.cfg.MaxRequestsPerWindow > 0 && len(g.timestamps) >= g.cfg.MaxRequestsPerWindow {
		oldest := g.timestamps[0]
		if w := oldest.Add(g.cfg.Window).Sub(now); w > wait {
			wait = w
		}
	}
	if g.cfg.MinInterval > 0 && !g.lastRequest.IsZero() {
		if w := g.cfg.MinInterval - now.Sub(g.lastRequest); w > wait {
			wait = w
		}
	}
	if g.quotaKnown && g.remaining <= 0 && g.quotaReset.After(now) {
		if w := g.quotaReset.Sub(now); w > wait {
			wait = w
		}
	}
	return wait
}

func (g *Governor) recordLocked(now time.Time) {
	g.timestamps = append(g.timestamps, now)
	g.lastRequest = now
	if g.quotaKnown && g.remaining > 0 {
		g.remaining--
	}
	g.pruneLocked(now)
}

// pruneLocked drops timestamps that have aged out of the rolling window.
func (g *Governor) pruneLocked(now time.Time) {
	if g.cfg.Window <= 0 {
		return
	}
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.timestamps) && !g.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.timestamps = append(g.timestamps[:0], g.timestamps[i:]...)
	}
}

// InWindow reports how many requests are currently inside the rolling
// window. Exposed for the window invariant tests.
func (g *Governor) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	return len(g.timestamps)
}
