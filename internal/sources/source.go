// Package sources contains one adapter per external metadata provider.
// Each adapter performs the provider call, parses the provider-native
// format into the common field vocabulary, and classifies failures as
// transient or permanent so the retry wrapper and the cache know what to
// do with them.
package sources

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mkoivisto/alexandria/internal/record"
)

// Source fetches metadata fields for a query from one provider. Adapters
// must prefer an exact identifier (ISBN/LCCN) over fuzzy title/author
// search whenever the query carries one.
type Source interface {
	// Name returns the provider name used in fingerprints, configuration
	// and logs (e.g. "googlebooks").
	Name() string

	// Fetch performs the lookup and returns the provider's fields in the
	// common vocabulary. Errors are classified via the errors package;
	// an explicit "no record" answer is a permanent error.
	Fetch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error)
}

// QuotaObserver receives provider-advertised quota information. The rate
// governor implements this; adapters call it when response headers carry
// X-RateLimit values.
type QuotaObserver interface {
	ObserveServerQuota(remaining int, resetAt time.Time)
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// extractYear pulls the first 4-digit year out of a free-form date string
// ("(c)1992", "©1984", "1992-06-01"). Empty when none is found.
func extractYear(s string) string {
	return yearPattern.FindString(s)
}

// plausibleYearPattern matches years a publication date could actually
// carry, used where a field mixes years with other digit runs.
var plausibleYearPattern = regexp.MustCompile(`(1[5-9]\d{2}|20\d{2})`)

// earliestYear returns the smallest plausible year mentioned in s; MARC
// publication subfields often list reprint years after the original.
func earliestYear(s string) string {
	matches := plausibleYearPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return ""
	}
	min := 0
	for _, m := range matches {
		y, _ := strconv.Atoi(m)
		if min == 0 || y < min {
			min = y
		}
	}
	return strconv.Itoa(min)
}

var unsafeQueryChars = regexp.MustCompile(`[^a-zA-Z0-9\s.,:]`)

// sanitizeTerm strips characters that upset provider query parsers.
func sanitizeTerm(s string) string {
	return strings.TrimSpace(unsafeQueryChars.ReplaceAllString(s, ""))
}

// observeQuotaHeaders feeds X-RateLimit-Remaining/X-RateLimit-Reset style
// headers to the observer. Missing or malformed headers are ignored; their
// absence only disables the authoritative-quota shortcut.
func observeQuotaHeaders(resp *http.Response, observer QuotaObserver) {
	if observer == nil || resp == nil {
		return
	}
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}

	resetAt := time.Time{}
	if resetStr := resp.Header.Get("X-RateLimit-Reset"); resetStr != "" {
		if v, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			if v > 1_000_000_000 {
				// Unix epoch seconds
				resetAt = time.Unix(v, 0)
			} else {
				// Seconds from now
				resetAt = time.Now().Add(time.Duration(v) * time.Second)
			}
		}
	}
	observer.ObserveServerQuota(remaining, resetAt)
}
