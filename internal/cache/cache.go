// Package cache persists provider results keyed by query fingerprint in a
// local SQLite database. The cache is the idempotency layer of the
// enrichment engine: it is consulted before any network call and every
// terminal result is written through before being returned.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mkoivisto/alexandria/internal/record"
)

// Schema for the single fingerprint table. One serialized mapping per
// deployment; entries have no TTL and are never evicted.
const schema = `
CREATE TABLE IF NOT EXISTS provider_cache (
	fingerprint TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_cached_at ON provider_cache(cached_at);
`

// Store manages the SQLite-backed fingerprint cache.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens (creating if necessary) the cache database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the cached provider result for a fingerprint, or nil on a
// miss. Results read from the cache are flagged FromCache.
func (s *Store) Get(fingerprint string) (*record.ProviderResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(
		`SELECT data FROM provider_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var res record.ProviderResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		// A corrupt row behaves like a miss; the next Put repairs it.
		slog.Warn("Discarding unreadable cache entry", "fingerprint", fingerprint, "error", err)
		return nil, nil
	}
	res.FromCache = true
	return &res, nil
}

// Put writes a provider result through to disk. Same-fingerprint writers
// are last-writer-wins; the single INSERT OR REPLACE keeps each write
// all-or-nothing under a crash.
func (s *Store) Put(fingerprint string, res record.ProviderResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO provider_cache (fingerprint, data, cached_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		fingerprint, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Exists checks whether an entry is present without decoding it.
func (s *Store) Exists(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM provider_cache WHERE fingerprint = ? LIMIT 1`, fingerprint,
	).Scan(&one)
	return err == nil
}

// Clear removes all cache entries and returns the number deleted.
func (s *Store) Clear() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM provider_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache cleared", "rows_deleted", rows)
	return rows, nil
}

// Len reports the number of cached entries. Mostly useful in tests and the
// cache stats command.
func (s *Store) Len() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM provider_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
