package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

const (
	locDefaultBaseURL = "http://lx2.loc.gov:210/LCDB"

	// locDefaultRateLimitWait is assumed when the server complains about
	// request volume without saying how long to back off.
	locDefaultRateLimitWait = 5 * time.Minute
)

// LibraryOfCongress queries the LOC SRU 1.1 searchRetrieve endpoint and
// parses MARCXML records. SRU reports problems through an embedded
// diagnostic element rather than HTTP status codes, and rate limits only
// as free text inside that diagnostic, so both get special handling here.
type LibraryOfCongress struct {
	httpClient *http.Client
	baseURL    string
}

// LOCOption configures the adapter.
type LOCOption func(*LibraryOfCongress)

// WithLOCHTTPClient overrides the HTTP client, for tests.
func WithLOCHTTPClient(c *http.Client) LOCOption {
	return func(l *LibraryOfCongress) { l.httpClient = c }
}

// WithLOCBaseURL overrides the SRU endpoint, for tests.
func WithLOCBaseURL(base string) LOCOption {
	return func(l *LibraryOfCongress) { l.baseURL = base }
}

// NewLibraryOfCongress creates an LOC SRU adapter.
func NewLibraryOfCongress(opts ...LOCOption) *LibraryOfCongress {
	l := &LibraryOfCongress{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    locDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Source.
func (l *LibraryOfCongress) Name() string { return "loc" }

// sruResponse covers the parts of an SRU searchRetrieve response we care
// about. Field tags are deliberately namespace-free: encoding/xml then
// matches the local names regardless of the srw/diag/marc prefixes.
type sruResponse struct {
	NumberOfRecords int             `xml:"numberOfRecords"`
	Diagnostics     []sruDiagnostic `xml:"diagnostics>diagnostic"`
	Records         struct {
		Records []struct {
			Data struct {
				Record marcRecord `xml:"record"`
			} `xml:"recordData"`
		} `xml:"record"`
	} `xml:"records"`
}

type sruDiagnostic struct {
	URI     string `xml:"uri"`
	Message string `xml:"message"`
	Details string `xml:"details"`
}

type marcRecord struct {
	Datafields []struct {
		Tag       string `xml:"tag,attr"`
		Subfields []struct {
			Code string `xml:"code,attr"`
			Text string `xml:",chardata"`
		} `xml:"subfield"`
	} `xml:"datafield"`
}

// subfield returns the first subfield value for tag/code, or "".
func (r marcRecord) subfield(tag, code string) string {
	for _, df := range r.Datafields {
		if df.Tag != tag {
			continue
		}
		for _, sf := range df.Subfields {
			if sf.Code == code {
				return strings.TrimSpace(sf.Text)
			}
		}
	}
	return ""
}

// subfields returns every subfield value for tag/code.
func (r marcRecord) subfields(tag, code string) []string {
	var values []string
	for _, df := range r.Datafields {
		if df.Tag != tag {
			continue
		}
		for _, sf := range df.Subfields {
			if sf.Code == code {
				if v := strings.TrimSpace(sf.Text); v != "" {
					values = append(values, v)
				}
			}
		}
	}
	return values
}

// Fetch implements Source.
func (l *LibraryOfCongress) Fetch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error) {
	query, err := l.searchQuery(q)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"version":        {"1.1"},
		"operation":      {"searchRetrieve"},
		"query":          {query},
		"maximumRecords": {"1"},
		"recordSchema":   {"marcxml"},
	}
	reqURL := l.baseURL + "?" + params.Encode()
	slog.Debug("Fetching from LOC", "query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.NewPermanentError(l.Name(), "failed to create request", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientError(l.Name(), "SRU request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.FromHTTPStatus(l.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransientError(l.Name(), "failed to read response", err)
	}

	var sru sruResponse
	if err := xml.Unmarshal(body, &sru); err != nil {
		return nil, apperrors.NewPermanentError(l.Name(), "unparseable SRU response", err)
	}

	// A diagnostic element is checked before any bibliographic field; it is
	// how the server reports errors, including rate limits it never exposes
	// through headers.
	if len(sru.Diagnostics) > 0 {
		return nil, l.classifyDiagnostic(sru.Diagnostics[0])
	}

	if sru.NumberOfRecords == 0 || len(sru.Records.Records) == 0 {
		return nil, apperrors.NewPermanentError(l.Name(), "no record found", nil)
	}

	marc := sru.Records.Records[0].Data.Record
	fields := make(map[string]record.FieldValue)

	if v := marc.subfield("082", "a"); v != "" {
		fields[record.FieldClassification] = record.StringValue(v)
	}
	if v := marc.subfield("490", "a"); v != "" {
		fields[record.FieldSeriesName] = record.StringValue(strings.TrimRight(v, " ;"))
	}
	if v := marc.subfield("490", "v"); v != "" {
		fields[record.FieldVolumeNumber] = record.StringValue(v)
	}
	pubYearSource := marc.subfield("264", "c")
	if pubYearSource == "" {
		pubYearSource = marc.subfield("260", "c")
	}
	if year := earliestYear(pubYearSource); year != "" {
		fields[record.FieldPublicationYear] = record.StringValue(year)
	}
	if genres := marc.subfields("655", "a"); len(genres) > 0 {
		cleaned := make([]string, 0, len(genres))
		for _, g := range genres {
			cleaned = append(cleaned, strings.TrimSuffix(g, "."))
		}
		fields[record.FieldGenres] = record.ListValue(cleaned...)
	}
	if v := marc.subfield("245", "a"); v != "" {
		fields[record.FieldTitle] = record.StringValue(strings.TrimRight(v, " /:"))
	}
	if v := marc.subfield("100", "a"); v != "" {
		fields[record.FieldAuthor] = record.StringValue(strings.TrimRight(v, " ,."))
	}

	slog.Debug("LOC result", "fields", len(fields))
	return fields, nil
}

// searchQuery builds a CQL query, identifier first: ISBN, then LCCN, then
// fuzzy title/author.
func (l *LibraryOfCongress) searchQuery(q record.Query) (string, error) {
	if isbn := record.NormalizeISBN(q.ISBN); isbn != "" {
		return fmt.Sprintf("bath.isbn=%s", isbn), nil
	}
	if lccn := strings.TrimSpace(q.LCCN); lccn != "" {
		return fmt.Sprintf("bath.lccn=%s", lccn), nil
	}
	title := sanitizeTerm(q.Title)
	author := sanitizeTerm(q.Author)
	if title == "" && author == "" {
		return "", apperrors.NewPermanentError(l.Name(), "query has no ISBN, LCCN, title or author", nil)
	}
	var parts []string
	if title != "" {
		parts = append(parts, fmt.Sprintf("bath.title=%q", title))
	}
	if author != "" {
		parts = append(parts, fmt.Sprintf("bath.author=%q", author))
	}
	return strings.Join(parts, " and "), nil
}

// classifyDiagnostic turns an SRU diagnostic into the right error type.
// "intermittent" failures are the server's own wording for try-again-later.
func (l *LibraryOfCongress) classifyDiagnostic(diag sruDiagnostic) error {
	text := strings.TrimSpace(diag.Message + " " + diag.Details)
	if wait, ok := parseRateLimitNotice(text); ok {
		slog.Warn("LOC declared a rate limit", "message", text, "wait", wait)
		return apperrors.NewRateLimitErrorWithRetry(l.Name()+": "+text, wait)
	}
	if strings.Contains(strings.ToLower(text), "intermittent") {
		return apperrors.NewTransientError(l.Name(), "SRU diagnostic: "+text, nil)
	}
	return apperrors.NewPermanentError(l.Name(), "SRU diagnostic: "+text, nil)
}

var (
	rateLimitHours   = regexp.MustCompile(`(\d+)\s*hour`)
	rateLimitMinutes = regexp.MustCompile(`(\d+)\s*min`)
	rateLimitSeconds = regexp.MustCompile(`(\d+)\s*sec`)
)

// parseRateLimitNotice scans diagnostic free text for rate-limit phrases
// and extracts an explicit wait when the server names one. Falls back to a
// provider default when it only complains without a number.
func parseRateLimitNotice(text string) (time.Duration, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "rate limit") && !strings.Contains(lower, "too many requests") {
		return 0, false
	}
	if m := rateLimitHours.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return time.Duration(n) * time.Hour, true
	}
	if m := rateLimitMinutes.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return time.Duration(n) * time.Minute, true
	}
	if m := rateLimitSeconds.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return time.Duration(n) * time.Second, true
	}
	return locDefaultRateLimitWait, true
}
