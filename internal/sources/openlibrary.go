package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

const openLibraryDefaultBaseURL = "https://openlibrary.org"

// OpenLibrary queries the Open Library REST API: the bibkeys books
// endpoint when the query has an ISBN, the search endpoint otherwise.
type OpenLibrary struct {
	httpClient *http.Client
	baseURL    string
}

// OpenLibraryOption configures the adapter.
type OpenLibraryOption func(*OpenLibrary)

// WithOpenLibraryHTTPClient overrides the HTTP client, for tests.
func WithOpenLibraryHTTPClient(c *http.Client) OpenLibraryOption {
	return func(o *OpenLibrary) { o.httpClient = c }
}

// WithOpenLibraryBaseURL overrides the API base URL, for tests.
func WithOpenLibraryBaseURL(base string) OpenLibraryOption {
	return func(o *OpenLibrary) { o.baseURL = strings.TrimRight(base, "/") }
}

// NewOpenLibrary creates an Open Library adapter.
func NewOpenLibrary(opts ...OpenLibraryOption) *OpenLibrary {
	o := &OpenLibrary{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    openLibraryDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name implements Source.
func (o *OpenLibrary) Name() string { return "openlibrary" }

type openLibraryBook struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages int    `json:"number_of_pages"`
	Subjects      []struct {
		Name string `json:"name"`
	} `json:"subjects"`
}

type openLibrarySearch struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		FirstPublishYear int      `json:"first_publish_year"`
		Publisher        []string `json:"publisher"`
		Subject          []string `json:"subject"`
	} `json:"docs"`
}

// Fetch implements Source.
func (o *OpenLibrary) Fetch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error) {
	if isbn := record.NormalizeISBN(q.ISBN); isbn != "" {
		return o.fetchByISBN(ctx, isbn)
	}
	return o.fetchBySearch(ctx, q)
}

func (o *OpenLibrary) fetchByISBN(ctx context.Context, isbn string) (map[string]record.FieldValue, error) {
	reqURL := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", o.baseURL, isbn)
	slog.Debug("Fetching from Open Library", "isbn", isbn)

	var result map[string]openLibraryBook
	if err := o.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}

	book, ok := result["ISBN:"+isbn]
	if !ok || len(result) == 0 {
		return nil, apperrors.NewPermanentError(o.Name(), "no record found", nil)
	}

	fields := make(map[string]record.FieldValue)
	if book.Title != "" {
		fields[record.FieldTitle] = record.StringValue(book.Title)
	}
	if len(book.Authors) > 0 {
		names := make([]string, 0, len(book.Authors))
		for _, a := range book.Authors {
			if a.Name != "" {
				names = append(names, a.Name)
			}
		}
		if len(names) > 0 {
			fields[record.FieldAuthor] = record.StringValue(strings.Join(names, ", "))
		}
	}
	if len(book.Publishers) > 0 && book.Publishers[0].Name != "" {
		fields[record.FieldPublisher] = record.StringValue(book.Publishers[0].Name)
	}
	if year := extractYear(book.PublishDate); year != "" {
		fields[record.FieldPublicationYear] = record.StringValue(year)
	}
	if book.NumberOfPages > 0 {
		fields[record.FieldPageCount] = record.NumberValue(float64(book.NumberOfPages))
	}
	if len(book.Subjects) > 0 {
		subjects := make([]string, 0, len(book.Subjects))
		for _, s := range book.Subjects {
			if s.Name != "" {
				subjects = append(subjects, s.Name)
			}
		}
		if len(subjects) > 0 {
			fields[record.FieldSubjects] = record.ListValue(dedupe(subjects)...)
		}
	}
	return fields, nil
}

func (o *OpenLibrary) fetchBySearch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error) {
	title := sanitizeTerm(q.Title)
	author := sanitizeTerm(q.Author)
	if title == "" && author == "" {
		return nil, apperrors.NewPermanentError(o.Name(), "query has no ISBN, title or author", nil)
	}

	params := url.Values{"limit": {"1"}}
	if title != "" {
		params.Set("title", title)
	}
	if author != "" {
		params.Set("author", author)
	}
	reqURL := o.baseURL + "/search.json?" + params.Encode()
	slog.Debug("Searching Open Library", "title", title, "author", author)

	var result openLibrarySearch
	if err := o.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	if result.NumFound == 0 || len(result.Docs) == 0 {
		return nil, apperrors.NewPermanentError(o.Name(), "no record found", nil)
	}

	doc := result.Docs[0]
	fields := make(map[string]record.FieldValue)
	if doc.Title != "" {
		fields[record.FieldTitle] = record.StringValue(doc.Title)
	}
	if len(doc.AuthorName) > 0 {
		fields[record.FieldAuthor] = record.StringValue(strings.Join(doc.AuthorName, ", "))
	}
	if doc.FirstPublishYear > 0 {
		fields[record.FieldPublicationYear] = record.StringValue(strconv.Itoa(doc.FirstPublishYear))
	}
	if len(doc.Publisher) > 0 && doc.Publisher[0] != "" {
		fields[record.FieldPublisher] = record.StringValue(doc.Publisher[0])
	}
	if len(doc.Subject) > 0 {
		fields[record.FieldSubjects] = record.ListValue(dedupe(doc.Subject)...)
	}
	return fields, nil
}

func (o *OpenLibrary) getJSON(ctx context.Context, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return apperrors.NewPermanentError(o.Name(), "failed to create request", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransientError(o.Name(), "API request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apperrors.FromHTTPStatus(o.Name(), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return apperrors.NewPermanentError(o.Name(), "unparseable response", err)
	}
	return nil
}
