// Package enrich coordinates one enrichment pass: consult the cache, pace
// each provider through its rate governor, fetch with retries, cache
// terminal outcomes, and hand everything to the reconciler.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkoivisto/alexandria/internal/cache"
	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/ratelimit"
	"github.com/mkoivisto/alexandria/internal/reconcile"
	"github.com/mkoivisto/alexandria/internal/record"
	"github.com/mkoivisto/alexandria/internal/retry"
	"github.com/mkoivisto/alexandria/internal/sources"
)

// Provider pairs a source adapter with its pacing and retry policy.
// Governor is nil for pseudo-sources that never touch the network, and
// NoCache exempts them from fingerprint caching too.
type Provider struct {
	Source   sources.Source
	Governor *ratelimit.Governor
	Retry    retry.Policy
	NoCache  bool
}

// Orchestrator runs queries through the fixed provider sequence.
type Orchestrator struct {
	providers  []Provider
	cache      *cache.Store
	reconciler reconcile.Reconciler
}

// New creates an orchestrator. cacheStore may be nil to disable caching
// entirely.
func New(providers []Provider, cacheStore *cache.Store, reconciler reconcile.Reconciler) *Orchestrator {
	return &Orchestrator{
		providers:  providers,
		cache:      cacheStore,
		reconciler: reconciler,
	}
}

// Enrich runs one query through every provider in order and reconciles
// whatever came back. A provider that fails or is skipped never aborts the
// pass; its result is recorded and the remaining providers still run. Only
// context cancellation stops the sequence.
func (o *Orchestrator) Enrich(ctx context.Context, q record.Query) (record.ReconciledRecord, []record.ProviderResult, error) {
	if q.IsEmpty() {
		return record.ReconciledRecord{}, nil, fmt.Errorf("query is empty")
	}

	results := make([]record.ProviderResult, 0, len(o.providers))
	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			return record.ReconciledRecord{}, results, err
		}
		results = append(results, o.runProvider(ctx, p, q))
	}

	return o.reconciler.Reconcile(results), results, nil
}

func (o *Orchestrator) runProvider(ctx context.Context, p Provider, q record.Query) record.ProviderResult {
	name := p.Source.Name()
	fingerprint := record.Fingerprint(name, q)

	if o.cache != nil && !p.NoCache {
		cached, err := o.cache.Get(fingerprint)
		if err != nil {
			slog.Warn("Cache read failed, fetching fresh", "provider", name, "error", err)
		}
		if cached != nil {
			slog.Debug("Cache hit", "provider", name, "fingerprint", fingerprint)
			return *cached
		}
	}

	if p.Governor != nil {
		if failover, wait := p.Governor.ShouldFailover(); failover {
			slog.Warn("Skipping provider, wait exceeds failover threshold",
				"provider", name, "wait", wait)
			return record.ProviderResult{
				Provider: name,
				Skipped:  true,
				Err:      fmt.Sprintf("rate limit failover: predicted wait %s", wait),
			}
		}
		proceeded, err := p.Governor.Acquire(ctx)
		if err != nil {
			return record.ProviderResult{Provider: name, Skipped: true, Err: err.Error()}
		}
		if !proceeded {
			return record.ProviderResult{
				Provider: name,
				Skipped:  true,
				Err:      "rate limit failover: slot unavailable after wait",
			}
		}
	}

	fields, err := retry.Do(ctx, p.Retry, func(ctx context.Context) (map[string]record.FieldValue, error) {
		return p.Source.Fetch(ctx, q)
	})

	result := record.ProviderResult{Provider: name}
	if err != nil {
		result.Err = err.Error()
		slog.Warn("Provider failed", "provider", name, "error", err)
		// A declared limit outlives this query: hand the advised wait to
		// the governor so later queries failover instead of re-fetching.
		if p.Governor != nil && apperrors.IsRateLimitError(err) {
			if wait := apperrors.RetryAfter(err); wait > 0 {
				p.Governor.ObserveDeclaredLimit(wait)
			}
		}
	} else {
		result.Succeeded = true
		result.Fields = fields
		slog.Debug("Provider succeeded", "provider", name, "fields", len(fields))
	}

	// Successes and permanent failures are terminal and cached; transient
	// failures are not, so the next run retries them.
	if o.cache != nil && !p.NoCache {
		if err == nil || apperrors.IsPermanent(err) {
			if cacheErr := o.cache.Put(fingerprint, result); cacheErr != nil {
				slog.Warn("Cache write failed", "provider", name, "error", cacheErr)
			}
		}
	}

	return result
}
