package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

func newOpenLibraryServer(t *testing.T, handler http.HandlerFunc) *OpenLibrary {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenLibrary(WithOpenLibraryBaseURL(ts.URL), WithOpenLibraryHTTPClient(ts.Client()))
}

func TestOpenLibraryFetchByISBN(t *testing.T) {
	var gotPath, gotBibkeys string
	o := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBibkeys = r.URL.Query().Get("bibkeys")
		_, _ = w.Write([]byte(`{
			"ISBN:9780812550702": {
				"title": "Ender's Game",
				"authors": [{"name": "Orson Scott Card"}],
				"publishers": [{"name": "Tor Books"}],
				"publish_date": "July 1994",
				"number_of_pages": 352,
				"subjects": [{"name": "Science fiction"}, {"name": "Military art and science"}]
			}
		}`))
	})

	fields, err := o.Fetch(context.Background(), record.Query{ISBN: "978-0-8125-5070-2"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotPath != "/api/books" {
		t.Errorf("path = %q, want /api/books", gotPath)
	}
	if gotBibkeys != "ISBN:9780812550702" {
		t.Errorf("bibkeys = %q", gotBibkeys)
	}
	if got := fields[record.FieldTitle].Str; got != "Ender's Game" {
		t.Errorf("title = %q", got)
	}
	if got := fields[record.FieldAuthor].Str; got != "Orson Scott Card" {
		t.Errorf("author = %q", got)
	}
	if got := fields[record.FieldPublisher].Str; got != "Tor Books" {
		t.Errorf("publisher = %q", got)
	}
	if got := fields[record.FieldPublicationYear].Str; got != "1994" {
		t.Errorf("publication_year = %q", got)
	}
	if got := fields[record.FieldPageCount].Num; got != 352 {
		t.Errorf("page_count = %v", got)
	}
	subjects := fields[record.FieldSubjects].List
	if len(subjects) != 2 || subjects[0] != "Science fiction" {
		t.Errorf("subjects = %v", subjects)
	}
}

func TestOpenLibraryISBNMissingKeyIsPermanent(t *testing.T) {
	o := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := o.Fetch(context.Background(), record.Query{ISBN: "9780000000000"})
	if !apperrors.IsPermanent(err) {
		t.Errorf("missing bibkey should be permanent, got %v", err)
	}
}

func TestOpenLibrarySearchFallback(t *testing.T) {
	var gotPath, gotTitle, gotAuthor string
	o := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.URL.Query().Get("title")
		gotAuthor = r.URL.Query().Get("author")
		_, _ = w.Write([]byte(`{
			"numFound": 1,
			"docs": [{
				"title": "Dune",
				"author_name": ["Frank Herbert"],
				"first_publish_year": 1965,
				"publisher": ["Chilton Books"],
				"subject": ["Science fiction", "Deserts"]
			}]
		}`))
	})

	fields, err := o.Fetch(context.Background(), record.Query{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotPath != "/search.json" {
		t.Errorf("path = %q, want /search.json", gotPath)
	}
	if gotTitle != "Dune" || gotAuthor != "Frank Herbert" {
		t.Errorf("search params = (%q, %q)", gotTitle, gotAuthor)
	}
	if got := fields[record.FieldPublicationYear].Str; got != "1965" {
		t.Errorf("publication_year = %q", got)
	}
	if got := fields[record.FieldPublisher].Str; got != "Chilton Books" {
		t.Errorf("publisher = %q", got)
	}
}

func TestOpenLibrarySearchNoResults(t *testing.T) {
	o := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"numFound": 0, "docs": []}`))
	})

	_, err := o.Fetch(context.Background(), record.Query{Title: "No Such Book"})
	if !apperrors.IsPermanent(err) {
		t.Errorf("empty search should be permanent, got %v", err)
	}
}

func TestOpenLibraryServerErrorIsTransient(t *testing.T) {
	o := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := o.Fetch(context.Background(), record.Query{ISBN: "9780812550702"})
	if err == nil || apperrors.IsPermanent(err) {
		t.Errorf("5xx should be transient, got %v", err)
	}
}
