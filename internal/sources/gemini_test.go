package sources

import (
	"context"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

func TestGeminiFetch(t *testing.T) {
	var gotPrompt string
	g := NewGemini(WithGeminiGenerateFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return `{"classification": "FIC", "series_title": "Time Quintet", "volume_number": "1", "copyright_year": "(c)1962"}`, nil
	}))

	fields, err := g.Fetch(context.Background(), record.Query{Title: "A Wrinkle in Time", Author: "Madeleine LEngle"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !strings.Contains(gotPrompt, "Title: A Wrinkle in Time") {
		t.Errorf("prompt missing title: %q", gotPrompt)
	}
	if got := fields[record.FieldClassification].Str; got != "FIC" {
		t.Errorf("classification = %q", got)
	}
	if got := fields[record.FieldSeriesName].Str; got != "Time Quintet" {
		t.Errorf("series_name = %q", got)
	}
	if got := fields[record.FieldVolumeNumber].Str; got != "1" {
		t.Errorf("volume_number = %q", got)
	}
	if got := fields[record.FieldPublicationYear].Str; got != "1962" {
		t.Errorf("publication_year = %q, want year extracted from (c)1962", got)
	}
}

func TestGeminiTitleRequired(t *testing.T) {
	g := NewGemini(WithGeminiGenerateFunc(func(context.Context, string) (string, error) {
		t.Fatal("generate should not be called without a title")
		return "", nil
	}))

	_, err := g.Fetch(context.Background(), record.Query{Author: "Someone"})
	if !apperrors.IsPermanent(err) {
		t.Errorf("missing title should be permanent, got %v", err)
	}
}

func TestGeminiGenerationFailureIsTransient(t *testing.T) {
	g := NewGemini(WithGeminiGenerateFunc(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("model overloaded")
	}))

	_, err := g.Fetch(context.Background(), record.Query{Title: "Whispers"})
	if err == nil || apperrors.IsPermanent(err) {
		t.Errorf("generation failure should be transient, got %v", err)
	}
}

func TestGeminiUnparseableResponseIsPermanent(t *testing.T) {
	g := NewGemini(WithGeminiGenerateFunc(func(context.Context, string) (string, error) {
		return "I could not find that book, sorry!", nil
	}))

	_, err := g.Fetch(context.Background(), record.Query{Title: "Whispers"})
	if !apperrors.IsPermanent(err) {
		t.Errorf("unparseable model answer should be permanent, got %v", err)
	}
}

func TestParseClassificationStripsCodeFence(t *testing.T) {
	text := "```json\n{\"classification\": \"300\", \"series_title\": \"\", \"volume_number\": \"\", \"copyright_year\": \"1984\"}\n```"

	fields, err := parseClassification(text)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if got := fields[record.FieldClassification].Str; got != "300" {
		t.Errorf("classification = %q", got)
	}
	if got := fields[record.FieldPublicationYear].Str; got != "1984" {
		t.Errorf("publication_year = %q", got)
	}
	if _, ok := fields[record.FieldSeriesName]; ok {
		t.Error("empty series_title should be omitted")
	}
}

func TestParseClassificationBareFence(t *testing.T) {
	text := "```\n{\"classification\": \"FIC\"}\n```"

	fields, err := parseClassification(text)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if got := fields[record.FieldClassification].Str; got != "FIC" {
		t.Errorf("classification = %q", got)
	}
}
