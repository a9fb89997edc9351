package classifier

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model override is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiBackend classifies via Google's Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend builds a backend from an API key (GOOGLE_API_KEY)
// and an optional model override. The genai client is created here,
// using ctx, and fails fast if construction fails.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text("ping"), nil)
	if err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

func (b *GeminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), nil)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response text")
	}
	return text, nil
}
