package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSynthesizer posts text to a hosted inference endpoint that answers with
// encoded audio, e.g. a HuggingFace MMS-TTS model.
type HTTPSynthesizer struct {
	endpoint string
	token    string
	format   string
	client   *http.Client
}

func NewHTTPSynthesizer(endpoint, token, format string, timeout time.Duration) *HTTPSynthesizer {
	if format == "" {
		format = "wav"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSynthesizer{
		endpoint: endpoint,
		token:    token,
		format:   strings.TrimPrefix(format, "."),
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTPSynthesizer) Extension() string { return h.format }

func (h *HTTPSynthesizer) Synthesize(ctx context.Context, text string, _ Options) (Result, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/"+h.format)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call tts endpoint: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("tts endpoint returned status %d: %s", resp.StatusCode, truncate(string(audio), 200))
	}
	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		return Result{}, fmt.Errorf("tts endpoint returned json instead of audio: %s", truncate(string(audio), 200))
	}
	return Result{Audio: audio, ContentType: ct}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
