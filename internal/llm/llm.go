package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/config"
	"github.com/TobiSchelling/friendscout/internal/logging"
)

// Provider is the interface for LLM providers.
// Output is always freeform text; no streaming and no structured output.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	IsConfigured() bool
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// Options are the generation settings shared by all providers.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	Options Options
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, opts Options) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: baseURL,
		Options: opts,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"num_predict": o.Options.MaxTokens,
			"temperature": o.Options.Temperature,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, "ollama", o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", err
	}

	return nonEmpty("ollama", result.Message.Content)
}

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	Options Options
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKey string, opts Options) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com",
		Options: opts,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if o.APIKey == "" {
		return "", apperr.Auth("openai", fmt.Errorf("OpenAI API key not configured"))
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  o.Options.MaxTokens,
		"temperature": o.Options.Temperature,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.client, "openai", o.BaseURL+"/v1/chat/completions", headers, body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", apperr.Model("openai", fmt.Errorf("no choices in OpenAI response"))
	}
	return nonEmpty("openai", result.Choices[0].Message.Content)
}

// postJSON posts body as JSON and decodes the reply into out, classifying failures.
func postJSON(ctx context.Context, client *http.Client, op, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		status := fmt.Errorf("%s API returned %d: %s", op, resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return apperr.Auth(op, status)
		}
		return apperr.Model(op, status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Model(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func nonEmpty(op, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Model(op, ErrEmptyResponse)
	}
	return text, nil
}

// CreateProvider creates an LLM provider based on configuration.
// The configured provider is tried first; the others serve as fallbacks.
// Returns nil when nothing is usable.
func CreateProvider(ctx context.Context, cfg config.Model, logger *zap.Logger) Provider {
	logger = logging.OrNop(logger)
	opts := Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	candidates := map[string]func() Provider{
		"gemini": func() Provider {
			p, err := NewGeminiProvider(ctx, cfg.Model, config.Env(cfg.APIKeyEnv), opts)
			if err != nil {
				logger.Debug("Gemini unavailable", zap.Error(err))
				return nil
			}
			return p
		},
		"ollama": func() Provider {
			model := cfg.Model
			if cfg.Provider != "ollama" {
				model = "llama3.1"
			}
			return NewOllamaProvider(model, cfg.OllamaURL, opts)
		},
		"openai": func() Provider {
			return NewOpenAIProvider(cfg.OpenAIModel, config.Env(cfg.OpenAIAPIKeyEnv), opts)
		},
	}

	order := []string{cfg.Provider}
	for _, name := range []string{"gemini", "ollama", "openai"} {
		if name != cfg.Provider {
			order = append(order, name)
		}
	}

	for i, name := range order {
		build, ok := candidates[name]
		if !ok {
			continue
		}
		p := build()
		if p != nil && p.IsConfigured() {
			logger.Info("Using language model provider", zap.String("provider", name))
			return p
		}
		if i == 0 {
			logger.Warn("Configured provider not available, trying fallbacks", zap.String("provider", name))
		}
	}

	logger.Warn("No LLM provider available. Set GEMINI_API_KEY, run Ollama, or set OPENAI_API_KEY.")
	return nil
}
