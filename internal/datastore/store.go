// Package datastore persists enrichment outcomes: one row per reconciled
// record plus an audit row per provider result. Two backends implement the
// same interface, a local SQLite file and a remote Datasette instance.
package datastore

import (
	"encoding/json"
	"fmt"

	"github.com/mkoivisto/alexandria/internal/enrich"
	"github.com/mkoivisto/alexandria/internal/record"
)

// Store defines the interface for outcome storage.
type Store interface {
	// Connect establishes a connection to the data store
	Connect() error

	// CreateTable creates a new table with the given schema if it doesn't exist
	CreateTable(schema string) error

	// BatchInsert inserts multiple rows into the specified table
	BatchInsert(database string, table string, rows []map[string]any) error

	// Close closes the connection to the data store
	Close() error
}

// Schema for the outcome tables. The reconciled fields and the raw
// provider results are stored as JSON documents; the scalar columns exist
// for querying and sorting.
const (
	RecordsSchema = `CREATE TABLE IF NOT EXISTS enriched_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		author TEXT,
		isbn TEXT,
		quality_score REAL,
		fields TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	AuditSchema = `CREATE TABLE IF NOT EXISTS provider_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		isbn TEXT,
		provider TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		from_cache INTEGER NOT NULL,
		error TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
)

// SaveOutcomes writes a batch of enrichment outcomes to the store. Failed
// items get no record row but keep their audit rows, so a partial batch
// still leaves a trail.
func SaveOutcomes(s Store, database string, items []enrich.BatchItem) error {
	for _, schema := range []string{RecordsSchema, AuditSchema} {
		if err := s.CreateTable(schema); err != nil {
			return err
		}
	}

	var recordRows, auditRows []map[string]any
	for _, item := range items {
		for _, res := range item.Results {
			auditRows = append(auditRows, map[string]any{
				"title":      item.Query.Title,
				"isbn":       item.Query.ISBN,
				"provider":   res.Provider,
				"succeeded":  boolToInt(res.Succeeded),
				"skipped":    boolToInt(res.Skipped),
				"from_cache": boolToInt(res.FromCache),
				"error":      res.Err,
			})
		}
		if item.Err != nil {
			continue
		}

		fields, err := json.Marshal(item.Record.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal reconciled fields: %w", err)
		}
		recordRows = append(recordRows, map[string]any{
			"title":         resolvedOrQuery(item.Record, record.FieldTitle, item.Query.Title),
			"author":        resolvedOrQuery(item.Record, record.FieldAuthor, item.Query.Author),
			"isbn":          record.NormalizeISBN(item.Query.ISBN),
			"quality_score": item.Record.QualityScore,
			"fields":        string(fields),
		})
	}

	if err := s.BatchInsert(database, "enriched_records", recordRows); err != nil {
		return err
	}
	return s.BatchInsert(database, "provider_results", auditRows)
}

// resolvedOrQuery prefers the reconciled value for a field and falls back
// to what the query supplied.
func resolvedOrQuery(rec record.ReconciledRecord, field, fallback string) string {
	if res, ok := rec.Fields[field]; ok {
		return res.Value.Text()
	}
	return fallback
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
