// Package record defines the data contracts shared by the source adapters,
// the reconciliation engine and the orchestrator: queries, fingerprints,
// per-provider results and reconciled records.
package record

import (
	"strings"
	"unicode"
)

// Well-known field names in the common vocabulary. The Fields map is
// open-ended; these are the names the bundled adapters emit.
const (
	FieldTitle           = "title"
	FieldAuthor          = "author"
	FieldClassification  = "classification"
	FieldSeriesName      = "series_name"
	FieldVolumeNumber    = "volume_number"
	FieldPublicationYear = "publication_year"
	FieldGenres          = "genres"
	FieldSubjects        = "subjects"
	FieldDescription     = "description"
	FieldRating          = "rating"
	FieldPublisher       = "publisher"
	FieldPageCount       = "page_count"
	FieldLanguage        = "language"
)

// Query is a caller-supplied bibliographic lookup request. Any subset of
// fields may be empty; adapters decide what they can do with what is given.
type Query struct {
	Title  string
	Author string
	ISBN   string
	LCCN   string
}

// IsEmpty reports whether the query carries nothing to search on.
func (q Query) IsEmpty() bool {
	return q.Title == "" && q.Author == "" && q.ISBN == "" && q.LCCN == ""
}

// Normalize lowercases s, strips punctuation other than ".", "," and ":",
// and collapses runs of whitespace to a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == ',' || r == ':':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeISBN strips hyphens and spaces from an ISBN.
func NormalizeISBN(isbn string) string {
	normalized := strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(normalized, " ", "")
}

// Fingerprint derives the deterministic cache key for one provider and one
// query. Two queries that normalize identically share a fingerprint, which
// is what makes the cache an idempotency key for "at most one fetch per
// provider per query".
func Fingerprint(provider string, q Query) string {
	key := provider + "_" + Normalize(q.Title) + "|" + Normalize(q.Author) + "|" + NormalizeISBN(q.ISBN)
	return strings.ToLower(key)
}
