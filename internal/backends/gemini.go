package backends

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"kotonoha/internal/config"
	"kotonoha/internal/interfaces"
)

// GeminiBackend generates narrative turns through the Gemini API
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates the Gemini backend
func NewGeminiBackend(ctx context.Context, cfg config.GeminiConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", interfaces.ErrMissingCredential)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiBackend{
		client: client,
		model:  cfg.Model,
	}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

// Generate requests a JSON response for the assembled prompt
func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx,
		b.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
