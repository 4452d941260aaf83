package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkoivisto/alexandria/internal/csvutil"
	"github.com/mkoivisto/alexandria/internal/ratelimit"
	"github.com/mkoivisto/alexandria/internal/record"
)

// BatchItem couples one query with its enrichment outcome.
type BatchItem struct {
	Query   record.Query
	Record  record.ReconciledRecord
	Results []record.ProviderResult
	Err     error
}

// LoadQueriesCSV reads a batch of queries from a CSV file with title,
// author, isbn and lccn columns. Rows with no usable search key are
// skipped with a warning.
func LoadQueriesCSV(filename string) ([]record.Query, error) {
	return csvutil.ProcessCSV(filename, func(fields map[string]string) (record.Query, error) {
		q := record.Query{
			Title:  fields["title"],
			Author: fields["author"],
			ISBN:   fields["isbn"],
			LCCN:   fields["lccn"],
		}
		if q.IsEmpty() {
			return record.Query{}, fmt.Errorf("row has no title, author, isbn or lccn")
		}
		return q, nil
	}, csvutil.ProcessorOptions{SkipInvalid: true})
}

// EnrichAll runs a batch of queries through a bounded worker pool. The
// pacer spaces query starts across the whole pool so a large batch cannot
// stampede the providers; per-provider limits still apply inside each
// worker via the governors. Results come back in input order.
func (o *Orchestrator) EnrichAll(ctx context.Context, queries []record.Query, workers int, pacer *ratelimit.Pacer) []BatchItem {
	if workers <= 0 {
		workers = 1
	}

	items := make([]BatchItem, len(queries))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				q := queries[i]
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						items[i] = BatchItem{Query: q, Err: err}
						continue
					}
				}
				rec, results, err := o.Enrich(ctx, q)
				items[i] = BatchItem{Query: q, Record: rec, Results: results, Err: err}
			}
		}()
	}

	for i := range queries {
		select {
		case <-ctx.Done():
			items[i] = BatchItem{Query: queries[i], Err: ctx.Err()}
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	done := 0
	for _, item := range items {
		if item.Err == nil {
			done++
		}
	}
	slog.Info("Batch complete", "queries", len(queries), "succeeded", done)
	return items
}
