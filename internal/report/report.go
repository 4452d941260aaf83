// Package report renders a batch enrichment run as a YAML document: an
// overall summary, per-provider hit/miss/skip counts, and one entry per
// query with its reconciled fields.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkoivisto/alexandria/internal/enrich"
)

// ProviderSummary aggregates one provider's behavior across the batch.
type ProviderSummary struct {
	Provider  string `yaml:"provider"`
	Succeeded int    `yaml:"succeeded"`
	Failed    int    `yaml:"failed"`
	Skipped   int    `yaml:"skipped"`
	FromCache int    `yaml:"from_cache"`
}

// FieldEntry is one reconciled field with its provenance.
type FieldEntry struct {
	Value      string   `yaml:"value"`
	Confidence float64  `yaml:"confidence"`
	Sources    []string `yaml:"sources,flow"`
}

// QueryReport is the outcome for one query.
type QueryReport struct {
	Title        string                `yaml:"title,omitempty"`
	Author       string                `yaml:"author,omitempty"`
	ISBN         string                `yaml:"isbn,omitempty"`
	Error        string                `yaml:"error,omitempty"`
	QualityScore float64               `yaml:"quality_score"`
	Fields       map[string]FieldEntry `yaml:"fields,omitempty"`
}

// Run is the full report document.
type Run struct {
	GeneratedAt time.Time         `yaml:"generated_at"`
	Queries     int               `yaml:"queries"`
	Succeeded   int               `yaml:"succeeded"`
	Failed      int               `yaml:"failed"`
	Providers   []ProviderSummary `yaml:"providers"`
	Records     []QueryReport     `yaml:"records"`
}

// Build aggregates batch items into a report document.
func Build(items []enrich.BatchItem) Run {
	run := Run{
		GeneratedAt: time.Now().UTC(),
		Queries:     len(items),
		Records:     make([]QueryReport, 0, len(items)),
	}

	byProvider := make(map[string]*ProviderSummary)
	for _, item := range items {
		qr := QueryReport{
			Title:        item.Query.Title,
			Author:       item.Query.Author,
			ISBN:         item.Query.ISBN,
			QualityScore: item.Record.QualityScore,
		}
		if item.Err != nil {
			qr.Error = item.Err.Error()
			run.Failed++
		} else {
			run.Succeeded++
		}

		if len(item.Record.Fields) > 0 {
			qr.Fields = make(map[string]FieldEntry, len(item.Record.Fields))
			for name, res := range item.Record.Fields {
				qr.Fields[name] = FieldEntry{
					Value:      res.Value.Text(),
					Confidence: res.Confidence,
					Sources:    res.Sources,
				}
			}
		}
		run.Records = append(run.Records, qr)

		for _, res := range item.Results {
			sum, ok := byProvider[res.Provider]
			if !ok {
				sum = &ProviderSummary{Provider: res.Provider}
				byProvider[res.Provider] = sum
			}
			switch {
			case res.Skipped:
				sum.Skipped++
			case res.Succeeded:
				sum.Succeeded++
			default:
				sum.Failed++
			}
			if res.FromCache {
				sum.FromCache++
			}
		}
	}

	for _, sum := range byProvider {
		run.Providers = append(run.Providers, *sum)
	}
	sort.Slice(run.Providers, func(i, j int) bool {
		return run.Providers[i].Provider < run.Providers[j].Provider
	})

	return run
}

// WriteYAML encodes the report to w.
func (r Run) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the report to a file path, or stdout when path is "-".
func (r Run) WriteFile(path string) error {
	if path == "-" {
		return r.WriteYAML(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return r.WriteYAML(f)
}
