// Package cmd wires the CLI: a single-query enrich command, a CSV batch
// import, and cache maintenance.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/mkoivisto/alexandria/internal/cache"
	"github.com/mkoivisto/alexandria/internal/config"
	"github.com/mkoivisto/alexandria/internal/datastore"
	"github.com/mkoivisto/alexandria/internal/enrich"
	"github.com/mkoivisto/alexandria/internal/ratelimit"
	"github.com/mkoivisto/alexandria/internal/reconcile"
	"github.com/mkoivisto/alexandria/internal/record"
	"github.com/mkoivisto/alexandria/internal/report"
	"github.com/mkoivisto/alexandria/internal/retry"
	"github.com/mkoivisto/alexandria/internal/sources"
)

// CLI represents the complete command structure for the alexandria
// application.
type CLI struct {
	// Global flags
	Verbose bool `help:"Enable debug logging"`
	NoCache bool `help:"Bypass the provider response cache"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./alexandria_cache.db"`

	// Datastore flags
	DatastoreDB    string `help:"Path to SQLite database for enrichment outcomes" default:"./alexandria.db"`
	DatasetteURL   string `help:"Remote Datasette base URL (overrides local datastore)"`
	DatasetteToken string `help:"API token for the remote Datasette instance"`

	Enrich EnrichCmd `cmd:"" help:"Enrich a single bibliographic record"`
	Import ImportCmd `cmd:"" help:"Enrich a batch of records from a CSV file"`
	Cache  CacheCmd  `cmd:"" help:"Inspect or clear the provider response cache"`
}

// EnrichCmd enriches one record given on the command line.
type EnrichCmd struct {
	Title  string `short:"t" help:"Book title"`
	Author string `short:"a" help:"Author name"`
	ISBN   string `help:"ISBN-10 or ISBN-13, hyphens allowed"`
	LCCN   string `help:"Library of Congress Control Number"`
	Save   bool   `help:"Persist the outcome to the datastore" default:"false"`
	Report string `short:"o" help:"Report output path, - for stdout" default:"-"`
}

// ImportCmd enriches every row of a CSV file with title/author/isbn/lccn
// columns.
type ImportCmd struct {
	Input   string `short:"f" help:"Path to query CSV file"`
	Workers int    `short:"w" help:"Concurrent queries" default:"2"`
	Pace    int    `help:"Maximum query starts per minute across all workers, 0 disables" default:"30"`
	Save    bool   `help:"Persist outcomes to the datastore" default:"true"`
	Report  string `short:"o" help:"Report output path, - for stdout" default:"-"`
}

// CacheCmd groups cache maintenance subcommands.
type CacheCmd struct {
	Stats CacheStatsCmd `cmd:"" help:"Show cache entry count"`
	Clear CacheClearCmd `cmd:"" help:"Delete all cached provider responses"`
}

// CacheStatsCmd reports the number of cached entries.
type CacheStatsCmd struct{}

// CacheClearCmd empties the cache.
type CacheClearCmd struct{}

// Execute runs the Kong-based CLI
func Execute() {
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("alexandria"),
		kong.Description("Enrich bibliographic records from multiple catalog and AI sources."),
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	initLogging(cli.Verbose)
	updateGlobalConfig(&cli)

	err := ctx.Run(&cli)
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetDefault("CachePath", "./alexandria_cache.db")
	viper.SetDefault("DatastorePath", "./alexandria.db")

	viper.AutomaticEnv()
	if err := viper.BindEnv("GeminiAPIKey", "GEMINI_API_KEY"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}
	if err := viper.BindEnv("GoogleBooksAPIKey", "GOOGLE_BOOKS_API_KEY"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	viper.Set("CachePath", cli.CacheDBFile)
	viper.Set("DatastorePath", cli.DatastoreDB)
	config.InitConfig()
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// buildOrchestrator assembles the provider chain in the fixed priority
// order, each source behind its own governor and retry policy. The
// returned closer releases the cache handle.
func buildOrchestrator(cli *CLI) (*enrich.Orchestrator, func(), error) {
	var cacheStore *cache.Store
	closer := func() {}
	if !cli.NoCache {
		var err error
		cacheStore, err = cache.Open(config.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening cache: %w", err)
		}
		closer = func() { _ = cacheStore.Close() }
	}

	var providers []enrich.Provider
	for _, name := range config.ProviderOrder() {
		var gov *ratelimit.Governor
		if name != "original" {
			gov = ratelimit.NewGovernor(name, config.GovernorConfig(name))
		}
		src := buildSource(name, gov)
		if src == nil {
			continue
		}
		providers = append(providers, enrich.Provider{
			Source:   src,
			Governor: gov,
			Retry:    retry.Policy{Provider: name, Delays: config.RetryDelays(name)},
			NoCache:  gov == nil,
		})
	}

	engine := reconcile.NewEngine(config.ReconcileConfig())
	return enrich.New(providers, cacheStore, engine), closer, nil
}

// buildSource creates one source adapter by name. gov is nil for
// pseudo-sources; Google Books is the one provider that reports server
// quota headers back into its governor.
func buildSource(name string, gov *ratelimit.Governor) sources.Source {
	switch name {
	case "gemini":
		if config.GeminiAPIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
			slog.Info("Skipping gemini provider, no API key configured")
			return nil
		}
		return sources.NewGemini(
			sources.WithGeminiAPIKey(config.GeminiAPIKey),
			sources.WithGeminiModel(config.GeminiModel),
		)
	case "googlebooks":
		return sources.NewGoogleBooks(
			sources.WithGoogleBooksAPIKey(config.GoogleBooksAPIKey),
			sources.WithGoogleBooksQuotaObserver(gov),
		)
	case "loc":
		return sources.NewLibraryOfCongress()
	case "openlibrary":
		return sources.NewOpenLibrary()
	case "original":
		return sources.NewOriginal()
	default:
		slog.Warn("Unknown provider in order, skipping", "provider", name)
		return nil
	}
}

func openDatastore(cli *CLI) (datastore.Store, error) {
	var store datastore.Store
	if cli.DatasetteURL != "" {
		store = datastore.NewDatasetteClient(cli.DatasetteURL, cli.DatasetteToken)
	} else {
		store = datastore.NewSQLiteStore(config.DatastorePath)
	}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to datastore: %w", err)
	}
	return store, nil
}

func saveOutcomes(cli *CLI, items []enrich.BatchItem) error {
	store, err := openDatastore(cli)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return datastore.SaveOutcomes(store, "alexandria", items)
}

// Run methods for each command

func (e *EnrichCmd) Run(cli *CLI) error {
	q := record.Query{Title: e.Title, Author: e.Author, ISBN: e.ISBN, LCCN: e.LCCN}
	if q.IsEmpty() {
		return fmt.Errorf("provide at least one of --title, --author, --isbn or --lccn")
	}

	orch, closer, err := buildOrchestrator(cli)
	if err != nil {
		return err
	}
	defer closer()

	rec, results, err := orch.Enrich(context.Background(), q)
	item := enrich.BatchItem{Query: q, Record: rec, Results: results, Err: err}

	if e.Save && err == nil {
		if saveErr := saveOutcomes(cli, []enrich.BatchItem{item}); saveErr != nil {
			slog.Error("Failed to persist outcome", "error", saveErr)
		}
	}

	return report.Build([]enrich.BatchItem{item}).WriteFile(e.Report)
}

func (i *ImportCmd) Run(cli *CLI) error {
	input := i.Input
	if input == "" {
		input = viper.GetString("import.csvfile")
	}
	if input == "" {
		return fmt.Errorf("input CSV file is required (provide via --input flag or import.csvfile in config)")
	}

	queries, err := enrich.LoadQueriesCSV(input)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("no usable queries in %s", input)
	}
	slog.Info("Starting batch enrichment", "queries", len(queries), "workers", i.Workers)

	orch, closer, err := buildOrchestrator(cli)
	if err != nil {
		return err
	}
	defer closer()

	items := orch.EnrichAll(context.Background(), queries, i.Workers, ratelimit.NewPacer(i.Pace))

	if i.Save {
		if err := saveOutcomes(cli, items); err != nil {
			slog.Error("Failed to persist outcomes", "error", err)
		}
	}

	return report.Build(items).WriteFile(i.Report)
}

func (c *CacheStatsCmd) Run(cli *CLI) error {
	store, err := cache.Open(config.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Len()
	if err != nil {
		return err
	}
	fmt.Printf("%d cached provider responses in %s\n", n, config.CachePath)
	return nil
}

func (c *CacheClearCmd) Run(cli *CLI) error {
	store, err := cache.Open(config.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d cached provider responses\n", n)
	return nil
}
