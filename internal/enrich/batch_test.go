package enrich

import (
	"context"
	"testing"

	"github.com/mkoivisto/alexandria/internal/record"
	"github.com/mkoivisto/alexandria/internal/testutil"
)

func TestLoadQueriesCSV(t *testing.T) {
	env := testutil.NewTestEnv(t)

	env.WriteFileString("queries.csv", `title,author,isbn,lccn
Whispers,Belva Plain,,
,,978-0-8125-5070-2,
,,,93038739
,,,
`)

	queries, err := LoadQueriesCSV(env.Path("queries.csv"))
	if err != nil {
		t.Fatalf("LoadQueriesCSV failed: %v", err)
	}

	// The all-empty row is skipped.
	if len(queries) != 3 {
		t.Fatalf("got %d queries, want 3", len(queries))
	}
	if queries[0].Title != "Whispers" || queries[0].Author != "Belva Plain" {
		t.Errorf("queries[0] = %+v", queries[0])
	}
	if queries[1].ISBN != "978-0-8125-5070-2" {
		t.Errorf("queries[1] = %+v", queries[1])
	}
	if queries[2].LCCN != "93038739" {
		t.Errorf("queries[2] = %+v", queries[2])
	}
}

func TestLoadQueriesCSVColumnOrderIrrelevant(t *testing.T) {
	env := testutil.NewTestEnv(t)

	env.WriteFileString("queries.csv", `AUTHOR,Title
Belva Plain,Whispers
`)

	queries, err := LoadQueriesCSV(env.Path("queries.csv"))
	if err != nil {
		t.Fatalf("LoadQueriesCSV failed: %v", err)
	}
	if len(queries) != 1 || queries[0].Title != "Whispers" || queries[0].Author != "Belva Plain" {
		t.Errorf("queries = %+v", queries)
	}
}

func TestEnrichAllPreservesInputOrder(t *testing.T) {
	src := &fakeSource{name: "alpha", fields: map[string]record.FieldValue{
		record.FieldClassification: record.StringValue("FIC"),
	}}
	o := New([]Provider{{Source: src, Retry: noSleepPolicy("alpha"), NoCache: true}}, nil, testEngine())

	queries := []record.Query{
		{Title: "First"},
		{Title: "Second"},
		{Title: "Third"},
		{}, // empty query fails, the rest of the batch continues
		{Title: "Fifth"},
	}
	items := o.EnrichAll(context.Background(), queries, 3, nil)

	if len(items) != len(queries) {
		t.Fatalf("got %d items, want %d", len(items), len(queries))
	}
	for i, item := range items {
		if item.Query.Title != queries[i].Title {
			t.Errorf("items[%d] is for %q, want %q", i, item.Query.Title, queries[i].Title)
		}
	}
	if items[3].Err == nil {
		t.Error("empty query should carry its error")
	}
	if items[4].Err != nil {
		t.Errorf("later query failed: %v", items[4].Err)
	}
	if src.calls.Load() != 4 {
		t.Errorf("source fetched %d times, want 4", src.calls.Load())
	}
}

func TestEnrichAllZeroWorkers(t *testing.T) {
	src := &fakeSource{name: "alpha", fields: map[string]record.FieldValue{
		record.FieldTitle: record.StringValue("A"),
	}}
	o := New([]Provider{{Source: src, Retry: noSleepPolicy("alpha"), NoCache: true}}, nil, testEngine())

	items := o.EnrichAll(context.Background(), []record.Query{{Title: "One"}}, 0, nil)
	if len(items) != 1 || items[0].Err != nil {
		t.Errorf("items = %+v", items)
	}
}
