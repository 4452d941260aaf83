// Package reconcile resolves each metadata field across all provider
// results using a per-field strategy, computes a confidence for every
// chosen value, and aggregates the confidences into one quality score for
// the record.
package reconcile

import (
	"sort"
	"strconv"

	"github.com/mkoivisto/alexandria/internal/record"
)

// Strategy names a per-field conflict resolution rule.
type Strategy string

const (
	// StrategyMostCommon restricts to the highest-priority tier with any
	// value and breaks in-tier conflicts by occurrence count across all
	// tiers. Used for title/author.
	StrategyMostCommon Strategy = "most_common"
	// StrategyMostRecent takes the numerically largest candidate. Used
	// for publication_year.
	StrategyMostRecent Strategy = "most_recent"
	// StrategyMergeAll unions distinct values of list-valued fields.
	StrategyMergeAll Strategy = "merge_all"
	// StrategyAverage takes the arithmetic mean of numeric candidates.
	StrategyAverage Strategy = "average"
	// StrategyLongest takes the single longest text. Used for
	// description.
	StrategyLongest Strategy = "longest"
	// StrategyDefault takes the first non-empty value in provider
	// priority order with the provider's base confidence.
	StrategyDefault Strategy = "default"
)

// FieldRule declares how one field resolves and how much it weighs in the
// quality score.
type FieldRule struct {
	Strategy Strategy
	Weight   float64
}

// ProviderRank places one provider in the priority order. Lower Tier wins;
// BaseConfidence is what a default-strategy pick inherits.
type ProviderRank struct {
	Tier           int
	BaseConfidence float64
}

// Config is the reconciliation configuration surface.
type Config struct {
	Providers map[string]ProviderRank
	Fields    map[string]FieldRule
	// DefaultWeight applies to fields without a declared rule.
	DefaultWeight float64
}

// Reconciler turns the provider results for one query into a reconciled
// record. The declarative-rule backend implements the same contract
// out-of-process; it consumes the identical ProviderResult shape.
type Reconciler interface {
	Reconcile(results []record.ProviderResult) record.ReconciledRecord
}

// Engine is the built-in strategy-table Reconciler.
type Engine struct {
	cfg Config
}

// NewEngine creates a reconciliation engine.
func NewEngine(cfg Config) *Engine {
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = 0.05
	}
	return &Engine{cfg: cfg}
}

// candidate is one non-empty value observed for a field. Candidates keep
// the order adapters were invoked in, so ties break by earliest-discovered
// reproducibly.
type candidate struct {
	value    record.FieldValue
	provider string
	tier     int
	baseConf float64
	order    int
}

// Reconcile implements Reconciler. Skipped and failed results contribute
// no fields; if nothing contributed anything the record comes back with no
// fields and a zero quality score, never an error.
func (e *Engine) Reconcile(results []record.ProviderResult) record.ReconciledRecord {
	byField := make(map[string][]candidate)
	for i, res := range results {
		for name := range res.Fields {
			value, ok := res.Field(name)
			if !ok {
				continue
			}
			rank := e.rank(res.Provider)
			byField[name] = append(byField[name], candidate{
				value:    value,
				provider: res.Provider,
				tier:     rank.Tier,
				baseConf: rank.BaseConfidence,
				order:    i,
			})
		}
	}

	reconciled := record.ReconciledRecord{Fields: make(map[string]record.FieldResolution, len(byField))}

	var weightedSum, totalWeight float64
	for name, candidates := range byField {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].order < candidates[j].order
		})
		resolution, ok := e.resolve(name, candidates)
		if !ok {
			continue
		}
		reconciled.Fields[name] = resolution

		weight := e.cfg.DefaultWeight
		if rule, declared := e.cfg.Fields[name]; declared && rule.Weight > 0 {
			weight = rule.Weight
		}
		weightedSum += resolution.Confidence * weight
		totalWeight += weight
	}

	// Absent fields are excluded from both numerator and denominator.
	if totalWeight > 0 {
		reconciled.QualityScore = weightedSum / totalWeight
	}
	return reconciled
}

func (e *Engine) rank(provider string) ProviderRank {
	if rank, ok := e.cfg.Providers[provider]; ok {
		return rank
	}
	// Unranked providers sort last with a modest confidence.
	return ProviderRank{Tier: int(^uint(0) >> 1), BaseConfidence: 0.5}
}

func (e *Engine) resolve(name string, candidates []candidate) (record.FieldResolution, bool) {
	strategy := StrategyDefault
	if rule, ok := e.cfg.Fields[name]; ok && rule.Strategy != "" {
		strategy = rule.Strategy
	}

	switch strategy {
	case StrategyMostCommon:
		return resolveMostCommon(name, candidates)
	case StrategyMostRecent:
		return resolveMostRecent(name, candidates)
	case StrategyMergeAll:
		return resolveMergeAll(name, candidates)
	case StrategyAverage:
		return resolveAverage(name, candidates)
	case StrategyLongest:
		return resolveLongest(name, candidates)
	default:
		return resolveFirstByPriority(name, candidates)
	}
}

// resolveMostCommon restricts to the highest-priority tier holding any
// value. A single distinct value there wins outright; several distinct
// values are split by occurrence count across all tiers, earliest
// discovered on a tie. Confidence is the chosen value's share of the
// restricted tier.
func resolveMostCommon(name string, candidates []candidate) (record.FieldResolution, bool) {
	if len(candidates) == 0 {
		return record.FieldResolution{}, false
	}

	topTier := candidates[0].tier
	for _, c := range candidates[1:] {
		if c.tier < topTier {
			topTier = c.tier
		}
	}
	var tierCandidates []candidate
	for _, c := range candidates {
		if c.tier == topTier {
			tierCandidates = append(tierCandidates, c)
		}
	}

	counts := make(map[string]int)
	for _, c := range candidates {
		counts[c.value.Text()]++
	}

	chosen := tierCandidates[0]
	for _, c := range tierCandidates[1:] {
		if counts[c.value.Text()] > counts[chosen.value.Text()] {
			chosen = c
		}
	}

	chosenText := chosen.value.Text()
	inTier := 0
	var sources []string
	for _, c := range tierCandidates {
		if c.value.Text() == chosenText {
			inTier++
		}
	}
	for _, c := range candidates {
		if c.value.Text() == chosenText {
			sources = append(sources, c.provider)
		}
	}

	return record.FieldResolution{
		Field:      name,
		Value:      chosen.value,
		Confidence: float64(inTier) / float64(len(tierCandidates)),
		Sources:    sources,
	}, true
}

// resolveMostRecent parses numeric candidates and takes the maximum.
func resolveMostRecent(name string, candidates []candidate) (record.FieldResolution, bool) {
	best := 0.0
	found := false
	var sources []string
	for _, c := range candidates {
		n, ok := c.value.AsNumber()
		if !ok {
			continue
		}
		if !found || n > best {
			best = n
			sources = []string{c.provider}
			found = true
		} else if n == best {
			sources = append(sources, c.provider)
		}
	}
	if !found {
		return record.FieldResolution{}, false
	}
	return record.FieldResolution{
		Field:      name,
		Value:      record.StringValue(strconv.FormatInt(int64(best), 10)),
		Confidence: 1.0,
		Sources:    sources,
	}, true
}

// resolveMergeAll unions distinct values. Confidence is the agreement
// measure distinct/total, not a completeness claim.
func resolveMergeAll(name string, candidates []candidate) (record.FieldResolution, bool) {
	if len(candidates) == 0 {
		return record.FieldResolution{}, false
	}

	seen := make(map[string]bool)
	var union []string
	total := 0
	var sources []string
	for _, c := range candidates {
		sources = append(sources, c.provider)
		values := c.value.List
		if c.value.Kind != record.KindList {
			values = []string{c.value.Text()}
		}
		for _, v := range values {
			total++
			if !seen[v] {
				seen[v] = true
				union = append(union, v)
			}
		}
	}
	if total == 0 {
		return record.FieldResolution{}, false
	}
	return record.FieldResolution{
		Field:      name,
		Value:      record.ListValue(union...),
		Confidence: float64(len(union)) / float64(total),
		Sources:    sources,
	}, true
}

// resolveAverage takes the arithmetic mean of numeric candidates.
func resolveAverage(name string, candidates []candidate) (record.FieldResolution, bool) {
	sum := 0.0
	count := 0
	var sources []string
	for _, c := range candidates {
		if n, ok := c.value.AsNumber(); ok {
			sum += n
			count++
			sources = append(sources, c.provider)
		}
	}
	if count == 0 {
		return record.FieldResolution{}, false
	}
	return record.FieldResolution{
		Field:      name,
		Value:      record.NumberValue(sum / float64(count)),
		Confidence: 1.0,
		Sources:    sources,
	}, true
}

// resolveLongest picks the single longest text.
func resolveLongest(name string, candidates []candidate) (record.FieldResolution, bool) {
	if len(candidates) == 0 {
		return record.FieldResolution{}, false
	}

	chosen := candidates[0]
	maxLen := 0
	for _, c := range candidates {
		if l := len(c.value.Text()); l > maxLen {
			maxLen = l
		}
		if len(c.value.Text()) > len(chosen.value.Text()) {
			chosen = c
		}
	}
	if maxLen == 0 {
		return record.FieldResolution{}, false
	}
	return record.FieldResolution{
		Field:      name,
		Value:      chosen.value,
		Confidence: float64(len(chosen.value.Text())) / float64(maxLen),
		Sources:    []string{chosen.provider},
	}, true
}

// resolveFirstByPriority takes the first non-empty value in provider
// priority order with that provider's base confidence.
func resolveFirstByPriority(name string, candidates []candidate) (record.FieldResolution, bool) {
	if len(candidates) == 0 {
		return record.FieldResolution{}, false
	}

	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if c.tier < chosen.tier {
			chosen = c
		}
	}
	return record.FieldResolution{
		Field:      name,
		Value:      chosen.value,
		Confidence: chosen.baseConf,
		Sources:    []string{chosen.provider},
	}, true
}
