// Package translate converts text between the citizen's language and the
// language the answer pipeline works in.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"village-assist/internal/lang"
)

// Translator translates and detects languages using ISO-639-1 codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
}

var languageNames = map[string]string{
	"te": "Telugu",
	"kn": "Kannada",
	"hi": "Hindi",
	"en": "English",
	"ta": "Tamil",
	"mr": "Marathi",
	"ur": "Urdu",
}

// LanguageName returns the English name for code, or code itself.
func LanguageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

// SameLanguage reports whether translation can be skipped.
func SameLanguage(source, target string) bool {
	return target == "" || strings.EqualFold(source, target)
}

// ChatTranslator uses an OpenAI-compatible chat endpoint (OpenRouter by default).
type ChatTranslator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// NewChatTranslator creates a translator against baseURL.
func NewChatTranslator(baseURL, apiKey, model string, timeout time.Duration, log *slog.Logger, reqOpts ...option.RequestOption) (*ChatTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("translation api key required")
	}
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, reqOpts...)
	cli := openai.NewClient(opts...)
	return &ChatTranslator{client: &cli, model: model, timeout: timeout, log: log.With("component", "translate")}, nil
}

const translateSystem = "You are a translation engine. Translate the user's text from %s to %s. " +
	"Reply with the translation only, without quotes, notes or transliteration."

const detectSystem = "Identify the language of the user's text. Reply with its two-letter ISO-639-1 code only."

func (t *ChatTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || SameLanguage(source, target) {
		return text, nil
	}
	from := LanguageName(source)
	if source == "" {
		from = "the detected language"
	}
	out, err := t.complete(ctx, fmt.Sprintf(translateSystem, from, LanguageName(target)), text)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", source, target, err)
	}
	return out, nil
}

// Detect asks the model for a language code and falls back to the script
// heuristic when the call fails or the answer is not a known code.
func (t *ChatTranslator) Detect(ctx context.Context, text string) (string, error) {
	fallback := lang.DetectLanguage(text, "en")
	out, err := t.complete(ctx, detectSystem, text)
	if err != nil {
		t.log.Warn("language detection failed; using script heuristic", "err", err)
		return fallback, nil
	}
	code := strings.ToLower(strings.Trim(strings.TrimSpace(out), `."'`))
	if _, ok := languageNames[code]; !ok {
		return fallback, nil
	}
	return code, nil
}

func (t *ChatTranslator) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("empty completion")
	}
	return out, nil
}

// Passthrough performs no translation and detects by script only.
type Passthrough struct{}

func (Passthrough) Translate(_ context.Context, text, _, _ string) (string, error) { return text, nil }

func (Passthrough) Detect(_ context.Context, text string) (string, error) {
	return lang.DetectLanguage(text, "en"), nil
}
