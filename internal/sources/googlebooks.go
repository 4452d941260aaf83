package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

const googleBooksDefaultBaseURL = "https://www.googleapis.com/books/v1"

// GoogleBooks queries the Google Books volumes API. An ISBN query
// (`isbn:<isbn>`) is used whenever the query carries one; otherwise it
// falls back to the fuzzy `intitle:"…"+inauthor:"…"` form.
type GoogleBooks struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	quota      QuotaObserver
}

// GoogleBooksOption configures the adapter.
type GoogleBooksOption func(*GoogleBooks)

// WithGoogleBooksHTTPClient overrides the HTTP client, for tests.
func WithGoogleBooksHTTPClient(c *http.Client) GoogleBooksOption {
	return func(g *GoogleBooks) { g.httpClient = c }
}

// WithGoogleBooksBaseURL overrides the API base URL, for tests.
func WithGoogleBooksBaseURL(base string) GoogleBooksOption {
	return func(g *GoogleBooks) { g.baseURL = strings.TrimRight(base, "/") }
}

// WithGoogleBooksAPIKey attaches an API key to every request.
func WithGoogleBooksAPIKey(key string) GoogleBooksOption {
	return func(g *GoogleBooks) { g.apiKey = key }
}

// WithGoogleBooksQuotaObserver wires provider-advertised quota headers to
// the rate governor.
func WithGoogleBooksQuotaObserver(q QuotaObserver) GoogleBooksOption {
	return func(g *GoogleBooks) { g.quota = q }
}

// NewGoogleBooks creates a Google Books adapter.
func NewGoogleBooks(opts ...GoogleBooksOption) *GoogleBooks {
	g := &GoogleBooks{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    googleBooksDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Source.
func (g *GoogleBooks) Name() string { return "googlebooks" }

type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			Description   string   `json:"description"`
			PageCount     int      `json:"pageCount"`
			Categories    []string `json:"categories"`
			AverageRating float64  `json:"averageRating"`
			Language      string   `json:"language"`
			SeriesInfo    struct {
				BookDisplayNumber string `json:"bookDisplayNumber"`
				Series            []struct {
					Title string `json:"title"`
				} `json:"series"`
			} `json:"seriesInfo"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Fetch implements Source.
func (g *GoogleBooks) Fetch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error) {
	query, err := g.searchQuery(q)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/volumes?q=%s&maxResults=1", g.baseURL, url.QueryEscape(query))
	if g.apiKey != "" {
		reqURL += "&key=" + url.QueryEscape(g.apiKey)
	}
	slog.Debug("Fetching from Google Books", "query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.NewPermanentError(g.Name(), "failed to create request", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientError(g.Name(), "API request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	observeQuotaHeaders(resp, g.quota)

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.FromHTTPStatus(g.Name(), resp.StatusCode)
	}

	var result googleBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewPermanentError(g.Name(), "unparseable response", err)
	}

	if result.TotalItems == 0 || len(result.Items) == 0 {
		return nil, apperrors.NewPermanentError(g.Name(), "no record found", nil)
	}

	vol := result.Items[0].VolumeInfo
	fields := make(map[string]record.FieldValue)

	if vol.Title != "" {
		fields[record.FieldTitle] = record.StringValue(vol.Title)
	}
	if len(vol.Authors) > 0 {
		fields[record.FieldAuthor] = record.StringValue(strings.Join(vol.Authors, ", "))
	}
	if vol.Publisher != "" {
		fields[record.FieldPublisher] = record.StringValue(vol.Publisher)
	}
	if year := extractYear(vol.PublishedDate); year != "" {
		fields[record.FieldPublicationYear] = record.StringValue(year)
	}
	if vol.Description != "" {
		fields[record.FieldDescription] = record.StringValue(vol.Description)
	}
	if vol.PageCount > 0 {
		fields[record.FieldPageCount] = record.NumberValue(float64(vol.PageCount))
	}
	if vol.AverageRating > 0 {
		fields[record.FieldRating] = record.NumberValue(vol.AverageRating)
	}
	if vol.Language != "" {
		fields[record.FieldLanguage] = record.StringValue(vol.Language)
	}

	genres := append([]string(nil), vol.Categories...)
	genres = append(genres, subjectsFromDescription(vol.Description)...)
	if len(genres) > 0 {
		fields[record.FieldGenres] = record.ListValue(dedupe(genres)...)
	}

	if vol.SeriesInfo.BookDisplayNumber != "" {
		fields[record.FieldVolumeNumber] = record.StringValue(vol.SeriesInfo.BookDisplayNumber)
	}
	if len(vol.SeriesInfo.Series) > 0 && vol.SeriesInfo.Series[0].Title != "" {
		fields[record.FieldSeriesName] = record.StringValue(vol.SeriesInfo.Series[0].Title)
	}

	slog.Debug("Google Books result", "title", vol.Title, "fields", len(fields))
	return fields, nil
}

// searchQuery builds the volumes query, identifier first.
func (g *GoogleBooks) searchQuery(q record.Query) (string, error) {
	if isbn := record.NormalizeISBN(q.ISBN); isbn != "" {
		return "isbn:" + isbn, nil
	}
	title := sanitizeTerm(q.Title)
	author := sanitizeTerm(q.Author)
	if title == "" && author == "" {
		return "", apperrors.NewPermanentError(g.Name(), "query has no ISBN, title or author", nil)
	}
	var parts []string
	if title != "" {
		parts = append(parts, fmt.Sprintf("intitle:%q", title))
	}
	if author != "" {
		parts = append(parts, fmt.Sprintf("inauthor:%q", author))
	}
	return strings.Join(parts, "+"), nil
}

var subjectLinePattern = regexp.MustCompile(`(?i)Subject: (.*?)(?:\n|$)`)

// subjectsFromDescription scans a description for an embedded
// "Subject: a, b, c" line, which some catalog entries carry instead of
// proper categories.
func subjectsFromDescription(description string) []string {
	m := subjectLinePattern.FindStringSubmatch(description)
	if m == nil {
		return nil
	}
	var subjects []string
	for _, s := range strings.Split(m[1], ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
