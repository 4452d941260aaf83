package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	apperrors "github.com/mkoivisto/alexandria/internal/errors"
	"github.com/mkoivisto/alexandria/internal/record"
)

const geminiDefaultModel = "gemini-2.5-flash"

// Gemini asks a generative model to classify a book: primary genre or
// Dewey classification, series title, volume number and copyright year.
// It only ever works from title/author; there is no identifier search to
// prefer.
type Gemini struct {
	model  string
	apiKey string

	// generate performs the model call; replaced in tests.
	generate func(ctx context.Context, prompt string) (string, error)
}

// GeminiOption configures the adapter.
type GeminiOption func(*Gemini)

// WithGeminiModel overrides the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) { g.model = model }
}

// WithGeminiAPIKey sets the API key explicitly instead of reading
// GEMINI_API_KEY.
func WithGeminiAPIKey(key string) GeminiOption {
	return func(g *Gemini) { g.apiKey = key }
}

// WithGeminiGenerateFunc replaces the model call, for tests.
func WithGeminiGenerateFunc(fn func(ctx context.Context, prompt string) (string, error)) GeminiOption {
	return func(g *Gemini) { g.generate = fn }
}

// NewGemini creates a generative-classification adapter.
func NewGemini(opts ...GeminiOption) *Gemini {
	g := &Gemini{model: geminiDefaultModel}
	for _, opt := range opts {
		opt(g)
	}
	if g.generate == nil {
		g.generate = g.generateContent
	}
	return g
}

// Name implements Source.
func (g *Gemini) Name() string { return "gemini" }

// Fetch implements Source.
func (g *Gemini) Fetch(ctx context.Context, q record.Query) (map[string]record.FieldValue, error) {
	title := sanitizeTerm(q.Title)
	author := sanitizeTerm(q.Author)
	if title == "" {
		return nil, apperrors.NewPermanentError(g.Name(), "query has no title to classify", nil)
	}

	prompt := classificationPrompt(title, author)
	slog.Debug("Requesting Gemini classification", "title", title, "author", author)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, apperrors.NewTransientError(g.Name(), "generation failed", err)
	}

	fields, err := parseClassification(text)
	if err != nil {
		return nil, apperrors.NewPermanentError(g.Name(), "unparseable model response", err)
	}
	return fields, nil
}

func classificationPrompt(title, author string) string {
	return fmt.Sprintf(
		"For the book Title: %s, Author: %s, provide its primary genre or Dewey Decimal "+
			"classification, series title, volume number, and copyright year. "+
			"If it's fiction, classify as 'FIC'. If non-fiction, provide a general Dewey Decimal "+
			"category like '300' for Social Sciences, '500' for Science, etc. "+
			"Provide the output as a single JSON object with 'classification', 'series_title', "+
			"'volume_number', and 'copyright_year' fields. "+
			"If you cannot determine a value for a field, use an empty string ''.",
		title, author,
	)
}

type geminiClassification struct {
	Classification string `json:"classification"`
	SeriesTitle    string `json:"series_title"`
	VolumeNumber   string `json:"volume_number"`
	CopyrightYear  string `json:"copyright_year"`
}

// parseClassification decodes the model's JSON answer, tolerating a
// markdown code fence around it.
func parseClassification(text string) (map[string]record.FieldValue, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var c geminiClassification
	if err := json.Unmarshal([]byte(cleaned), &c); err != nil {
		return nil, fmt.Errorf("decoding classification: %w", err)
	}

	fields := make(map[string]record.FieldValue)
	if c.Classification != "" {
		fields[record.FieldClassification] = record.StringValue(c.Classification)
	}
	if c.SeriesTitle != "" {
		fields[record.FieldSeriesName] = record.StringValue(c.SeriesTitle)
	}
	if c.VolumeNumber != "" {
		fields[record.FieldVolumeNumber] = record.StringValue(c.VolumeNumber)
	}
	if year := extractYear(c.CopyrightYear); year != "" {
		fields[record.FieldPublicationYear] = record.StringValue(year)
	}
	return fields, nil
}

// generateContent is the real model call.
func (g *Gemini) generateContent(ctx context.Context, prompt string) (string, error) {
	apiKey := g.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", apperrors.NewPermanentError(g.Name(), "GEMINI_API_KEY not set", nil)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned")
	}
	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", fmt.Errorf("unexpected response format")
}
