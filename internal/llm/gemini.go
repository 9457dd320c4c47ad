package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient generates text with the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	opts   Options
}

// NewGeminiClient creates a Gemini client for the given API key.
func NewGeminiClient(ctx context.Context, apiKey string, opts Options) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, opts: opts}, nil
}

// Generate sends the prompt as a single user turn.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.opts.Temperature)),
	}
	if c.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.opts.MaxTokens)
	}
	resp, err := c.client.Models.GenerateContent(reqCtx, c.opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
