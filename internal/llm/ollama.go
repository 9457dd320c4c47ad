package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaClient calls a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
	baseURL       string
	numCtx        int
	repeatPenalty float64
	opts          Options
	client        *http.Client
}

// NewOllamaClient creates a client for the server at baseURL. Zero numCtx or
// repeatPenalty leave the model defaults in place.
func NewOllamaClient(baseURL string, numCtx int, repeatPenalty float64, opts Options) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "gemma3:1b"
	}
	return &OllamaClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		numCtx:        numCtx,
		repeatPenalty: repeatPenalty,
		opts:          opts,
		client:        &http.Client{Timeout: opts.timeout()},
	}
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature"`
	NumPredict    int     `json:"num_predict,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a single non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.opts.Model,
		Prompt: prompt,
		Options: ollamaOptions{
			Temperature:   c.opts.Temperature,
			NumPredict:    c.opts.MaxTokens,
			NumCtx:        c.numCtx,
			RepeatPenalty: c.repeatPenalty,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Response, nil
}
