// Package config centralizes the tunable knobs: per-provider rate limits
// and retry schedules, provider priority, and the per-field reconciliation
// rules. Everything has a default and can be overridden through viper
// (config file or environment).
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/mkoivisto/alexandria/internal/ratelimit"
	"github.com/mkoivisto/alexandria/internal/reconcile"
	"github.com/mkoivisto/alexandria/internal/record"
)

// Global configuration variables
var (
	// CachePath is where the provider response cache lives.
	CachePath string
	// DatastorePath is where enrichment outcomes are persisted.
	DatastorePath string
	// GoogleBooksAPIKey raises the Google Books quota when set.
	GoogleBooksAPIKey string
	// GeminiAPIKey is the key for the generative classification provider.
	GeminiAPIKey string
	// GeminiModel overrides the default model name.
	GeminiModel string
)

// InitConfig initializes the global configuration
func InitConfig() {
	viper.SetDefault("CachePath", "./alexandria_cache.db")
	viper.SetDefault("DatastorePath", "./alexandria.db")
	viper.SetDefault("GeminiModel", "gemini-2.5-flash")

	CachePath = viper.GetString("CachePath")
	DatastorePath = viper.GetString("DatastorePath")
	GoogleBooksAPIKey = viper.GetString("GoogleBooksAPIKey")
	GeminiAPIKey = viper.GetString("GeminiAPIKey")
	GeminiModel = viper.GetString("GeminiModel")
}

// ProviderOrder is the fixed order providers are consulted in. It is also
// the tie-break order for reconciliation, so it must stay deterministic.
func ProviderOrder() []string {
	return []string{"gemini", "googlebooks", "loc", "openlibrary", "original"}
}

// GovernorConfig returns the rate governor settings for a provider.
// Defaults reflect each API's published or observed limits; any of them can
// be overridden via providers.<name>.* keys.
func GovernorConfig(provider string) ratelimit.Config {
	defaults := map[string]ratelimit.Config{
		"gemini": {
			MaxRequestsPerWindow: 10,
			Window:               time.Minute,
			MinInterval:          6 * time.Second,
		},
		"googlebooks": {
			MaxRequestsPerWindow: 100,
			Window:               time.Minute,
			MinInterval:          500 * time.Millisecond,
		},
		"loc": {
			MaxRequestsPerWindow: 10,
			Window:               time.Minute,
			MinInterval:          5 * time.Second,
		},
		"openlibrary": {
			MaxRequestsPerWindow: 60,
			Window:               time.Minute,
			MinInterval:          time.Second,
		},
	}

	cfg, ok := defaults[provider]
	if !ok {
		cfg = ratelimit.Config{MaxRequestsPerWindow: 30, Window: time.Minute, MinInterval: time.Second}
	}
	cfg.FailoverThreshold = ratelimit.DefaultFailoverThreshold

	prefix := "providers." + provider + "."
	if viper.IsSet(prefix + "maxrequests") {
		cfg.MaxRequestsPerWindow = viper.GetInt(prefix + "maxrequests")
	}
	if viper.IsSet(prefix + "window") {
		cfg.Window = viper.GetDuration(prefix + "window")
	}
	if viper.IsSet(prefix + "mininterval") {
		cfg.MinInterval = viper.GetDuration(prefix + "mininterval")
	}
	if viper.IsSet(prefix + "failoverthreshold") {
		cfg.FailoverThreshold = viper.GetDuration(prefix + "failoverthreshold")
	}
	return cfg
}

// RetryDelays returns the fixed retry schedule for a provider. The slower
// generative provider waits longer between attempts.
func RetryDelays(provider string) []time.Duration {
	if provider == "gemini" {
		return []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	}
	return []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
}

// ReconcileConfig returns the provider priority table and per-field
// strategy rules. Title and author carry the highest quality-score weight.
func ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		Providers: map[string]reconcile.ProviderRank{
			"gemini":      {Tier: 0, BaseConfidence: 0.95},
			"googlebooks": {Tier: 1, BaseConfidence: 0.9},
			"loc":         {Tier: 2, BaseConfidence: 0.85},
			"openlibrary": {Tier: 3, BaseConfidence: 0.8},
			"original":    {Tier: 4, BaseConfidence: 0.5},
		},
		Fields: map[string]reconcile.FieldRule{
			record.FieldTitle:           {Strategy: reconcile.StrategyMostCommon, Weight: 0.2},
			record.FieldAuthor:          {Strategy: reconcile.StrategyMostCommon, Weight: 0.2},
			record.FieldClassification:  {Strategy: reconcile.StrategyDefault, Weight: 0.15},
			record.FieldPublicationYear: {Strategy: reconcile.StrategyMostRecent, Weight: 0.1},
			record.FieldSeriesName:      {Strategy: reconcile.StrategyMostCommon, Weight: 0.1},
			record.FieldVolumeNumber:    {Strategy: reconcile.StrategyMostCommon, Weight: 0.05},
			record.FieldGenres:          {Strategy: reconcile.StrategyMergeAll, Weight: 0.05},
			record.FieldSubjects:        {Strategy: reconcile.StrategyMergeAll, Weight: 0.05},
			record.FieldDescription:     {Strategy: reconcile.StrategyLongest, Weight: 0.05},
			record.FieldRating:          {Strategy: reconcile.StrategyAverage, Weight: 0.05},
		},
		DefaultWeight: 0.05,
	}
}
