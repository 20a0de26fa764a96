package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/TobiSchelling/friendscout/internal/apperr"
)

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiProvider calls Google's Gemini API.
type GeminiProvider struct {
	Model    string
	Options  Options
	generate generateFunc
}

// NewGeminiProvider creates a Gemini provider. apiKey is required.
func NewGeminiProvider(ctx context.Context, model, apiKey string, opts Options) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, apperr.Auth("gemini", fmt.Errorf("GEMINI_API_KEY is required"))
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		Model:    model,
		Options:  opts,
		generate: client.Models.GenerateContent,
	}, nil
}

// IsConfigured reports whether a client was created.
func (g *GeminiProvider) IsConfigured() bool {
	return g.generate != nil
}

// Generate sends a single-turn prompt and returns the first candidate's text.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.Options.Temperature)),
		MaxOutputTokens: int32(g.Options.MaxTokens),
	}

	result, err := g.generate(ctx, g.Model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
			return "", apperr.Auth("gemini", err)
		}
		return "", apperr.Model("gemini", err)
	}

	if result == nil || len(result.Candidates) == 0 ||
		result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Model("gemini", ErrEmptyResponse)
	}

	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return nonEmpty("gemini", text)
}
