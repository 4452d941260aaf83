package cmd

import (
	"testing"

	"github.com/alecthomas/kong"

	"github.com/mkoivisto/alexandria/internal/cache"
	"github.com/mkoivisto/alexandria/internal/config"
	"github.com/mkoivisto/alexandria/internal/ratelimit"
	"github.com/mkoivisto/alexandria/internal/record"
	"github.com/mkoivisto/alexandria/internal/testutil"
)

// parseCLI parses args against the full command tree without running
// anything. kong.Exit is trapped so usage errors fail the test instead
// of killing the process.
func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("alexandria"),
		kong.Exit(func(code int) { t.Fatalf("kong exited with code %d", code) }),
		kong.Bind(&cli),
	)
	if err != nil {
		t.Fatalf("failed to build parser: %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("failed to parse %v: %v", args, err)
	}
	return &cli, ctx
}

func TestCLIDefaults(t *testing.T) {
	cli, ctx := parseCLI(t, "enrich", "--title", "Whispers")

	if ctx.Command() != "enrich" {
		t.Errorf("command = %q", ctx.Command())
	}
	if cli.CacheDBFile != "./alexandria_cache.db" {
		t.Errorf("CacheDBFile = %q", cli.CacheDBFile)
	}
	if cli.DatastoreDB != "./alexandria.db" {
		t.Errorf("DatastoreDB = %q", cli.DatastoreDB)
	}
	if cli.Verbose || cli.NoCache {
		t.Errorf("verbose/nocache should default to false")
	}
	if cli.Enrich.Title != "Whispers" {
		t.Errorf("Title = %q", cli.Enrich.Title)
	}
	if cli.Enrich.Save {
		t.Error("enrich --save should default to false")
	}
	if cli.Enrich.Report != "-" {
		t.Errorf("Report = %q", cli.Enrich.Report)
	}
}

func TestCLIImportDefaults(t *testing.T) {
	cli, ctx := parseCLI(t, "import", "--input", "books.csv")

	if ctx.Command() != "import" {
		t.Errorf("command = %q", ctx.Command())
	}
	if cli.Import.Input != "books.csv" {
		t.Errorf("Input = %q", cli.Import.Input)
	}
	if cli.Import.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cli.Import.Workers)
	}
	if cli.Import.Pace != 30 {
		t.Errorf("Pace = %d, want 30", cli.Import.Pace)
	}
	if !cli.Import.Save {
		t.Error("import --save should default to true")
	}
}

func TestCLICacheSubcommands(t *testing.T) {
	_, ctx := parseCLI(t, "cache", "stats")
	if ctx.Command() != "cache stats" {
		t.Errorf("command = %q", ctx.Command())
	}

	_, ctx = parseCLI(t, "cache", "clear", "--cache-db-file", "/tmp/x.db")
	if ctx.Command() != "cache clear" {
		t.Errorf("command = %q", ctx.Command())
	}
}

func TestCLIShortFlags(t *testing.T) {
	cli, _ := parseCLI(t, "enrich", "-t", "Dune", "-a", "Frank Herbert", "-o", "out.yaml")
	if cli.Enrich.Title != "Dune" || cli.Enrich.Author != "Frank Herbert" {
		t.Errorf("parsed enrich = %+v", cli.Enrich)
	}
	if cli.Enrich.Report != "out.yaml" {
		t.Errorf("Report = %q", cli.Enrich.Report)
	}
}

func TestUpdateGlobalConfig(t *testing.T) {
	testutil.ResetConfig(t)

	cli, _ := parseCLI(t, "enrich", "--title", "x",
		"--cache-db-file", "/tmp/custom_cache.db",
		"--datastore-db", "/tmp/custom.db")
	updateGlobalConfig(cli)

	if config.CachePath != "/tmp/custom_cache.db" {
		t.Errorf("CachePath = %q", config.CachePath)
	}
	if config.DatastorePath != "/tmp/custom.db" {
		t.Errorf("DatastorePath = %q", config.DatastorePath)
	}
}

func TestBuildSourceGeminiRequiresAPIKey(t *testing.T) {
	testutil.ResetConfig(t)
	config.InitConfig()
	t.Setenv("GEMINI_API_KEY", "")

	if src := buildSource("gemini", nil); src != nil {
		t.Error("gemini source should be skipped without an API key")
	}
}

func TestBuildSourceKnownProviders(t *testing.T) {
	gov := ratelimit.NewGovernor("googlebooks", config.GovernorConfig("googlebooks"))
	for _, name := range []string{"googlebooks", "loc", "openlibrary", "original"} {
		if src := buildSource(name, gov); src == nil {
			t.Errorf("buildSource(%q) = nil", name)
		} else if src.Name() != name {
			t.Errorf("buildSource(%q).Name() = %q", name, src.Name())
		}
	}

	if src := buildSource("bogus", nil); src != nil {
		t.Error("unknown provider should yield nil")
	}
}

func TestBuildOrchestratorNoCache(t *testing.T) {
	testutil.ResetConfig(t)
	config.InitConfig()
	t.Setenv("GEMINI_API_KEY", "")

	cli, _ := parseCLI(t, "enrich", "--title", "x", "--no-cache")
	orch, closer, err := buildOrchestrator(cli)
	if err != nil {
		t.Fatalf("buildOrchestrator failed: %v", err)
	}
	defer closer()
	if orch == nil {
		t.Fatal("expected an orchestrator")
	}
}

func TestCacheCommandsRoundTrip(t *testing.T) {
	testutil.ResetConfig(t)
	env := testutil.NewTestEnv(t)
	dbPath := testutil.SetupTestCache(t, env)

	store, err := cache.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	fp := record.Fingerprint("loc", record.Query{Title: "Whispers"})
	if err := store.Put(fp, record.ProviderResult{Provider: "loc", Succeeded: true}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close cache: %v", err)
	}

	stats := &CacheStatsCmd{}
	if err := stats.Run(&CLI{}); err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}

	clearCmd := &CacheClearCmd{}
	if err := clearCmd.Run(&CLI{}); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}

	store, err = cache.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen cache: %v", err)
	}
	defer func() { _ = store.Close() }()
	n, err := store.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 0 {
		t.Errorf("cache has %d entries after clear, want 0", n)
	}
}
