package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"kotonoha/internal/config"
	"kotonoha/internal/interfaces"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second
)

// OpenAIBackend generates narrative turns through the Chat Completions API
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIBackend creates the ChatGPT backend. A missing API key is a
// configuration error surfaced to the caller, not a silent fallback.
func NewOpenAIBackend(cfg config.OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", interfaces.ErrMissingCredential)
	}

	return &OpenAIBackend{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

// Generate sends the assembled prompt as a system message and requests
// strict JSON output
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: b.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: b.temperature,
		})
		if err != nil {
			lastErr = err
			if !isRetryableError(err) {
				break
			}
			continue
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices returned from model")
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "rate limit")
}
