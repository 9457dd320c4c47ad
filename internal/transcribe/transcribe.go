// Package transcribe converts recorded speech to text using a
// Whisper-compatible HTTP service.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transcript is the recognized text and the language the service detected.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error)
}

// Service flavours.
const (
	FlavourOpenAI = "openai" // whisper.cpp server, faster-whisper, OpenAI itself
	FlavourASR    = "asr"    // whisper-asr-webservice: POST /asr with query params
)

// Whisper calls a Whisper-compatible endpoint.
type Whisper struct {
	endpoint string
	flavour  string
	model    string
	language string
	apiKey   string
	client   *http.Client
	log      *slog.Logger
}

// Config for NewWhisper. Language is a hint; empty lets the service detect it.
type Config struct {
	Endpoint string
	Flavour  string
	Model    string
	Language string
	APIKey   string
	Timeout  time.Duration
}

func NewWhisper(cfg Config, log *slog.Logger) *Whisper {
	if cfg.Flavour == "" {
		cfg.Flavour = FlavourOpenAI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Whisper{
		endpoint: cfg.Endpoint,
		flavour:  cfg.Flavour,
		model:    cfg.Model,
		language: cfg.Language,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.With("component", "transcribe"),
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, fmt.Errorf("empty audio")
	}

	fileField := "file"
	reqURL := w.endpoint
	if w.flavour == FlavourASR {
		fileField = "audio_file"
		q := url.Values{}
		q.Set("task", "transcribe")
		q.Set("output", "json")
		q.Set("encode", "true")
		if w.language != "" {
			q.Set("language", w.language)
		}
		reqURL += "?" + q.Encode()
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(fileField, "audio"+ExtFromContentType(contentType))
	if err != nil {
		return Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcript{}, fmt.Errorf("write audio: %w", err)
	}
	if w.flavour != FlavourASR {
		if w.model != "" {
			_ = mw.WriteField("model", w.model)
		}
		if w.language != "" {
			_ = mw.WriteField("language", w.language)
		}
		_ = mw.WriteField("response_format", "verbose_json")
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return Transcript{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Transcript{}, fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Transcript
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcript{}, fmt.Errorf("decode transcription: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	out.Language = normalizeLanguage(out.Language)
	w.log.Debug("transcribed", "flavour", w.flavour, "text_length", len(out.Text), "language", out.Language)
	return out, nil
}

// Whisper reports either an ISO code or a lower-case English name.
var languageCodes = map[string]string{
	"telugu":  "te",
	"kannada": "kn",
	"hindi":   "hi",
	"english": "en",
	"tamil":   "ta",
}

func normalizeLanguage(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return l
}

// ExtFromContentType maps an audio MIME type to a file extension.
func ExtFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return ".m4a"
	default:
		return ".wav"
	}
}
