package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"village-assist/internal/lang"
	"village-assist/internal/llm"
	"village-assist/internal/retrieval"
)

// Outcome classifies how an answer was produced.
type Outcome string

const (
	OutcomeAnswered        Outcome = "answered"
	OutcomeEmptyQuery      Outcome = "empty_query"
	OutcomeGreeting        Outcome = "greeting"
	OutcomeProviderFailure Outcome = "provider_failure"
	OutcomeDegenerate      Outcome = "degenerate"
)

// Result is the user-facing reply. Text is never empty.
type Result struct {
	Text    string      `json:"text"`
	Outcome Outcome     `json:"outcome"`
	Script  lang.Script `json:"script"`
}

// Config holds the pipeline's template and thresholds. Zero values fall back
// to the defaults below.
type Config struct {
	Template      Template
	MinAnswerLen  int
	MaxAnswerLen  int
	ContextMaxLen int
	RetrievalK    int
}

const (
	DefaultMinAnswerLen  = 5
	DefaultContextMaxLen = 1200
	DefaultRetrievalK    = 2
)

func (c Config) withDefaults() Config {
	if c.Template.Text == "" {
		c.Template = builtinTemplates["telugu"]
	}
	if c.MinAnswerLen <= 0 {
		c.MinAnswerLen = DefaultMinAnswerLen
	}
	if c.MaxAnswerLen <= 0 {
		c.MaxAnswerLen = DefaultMaxLen
	}
	if c.ContextMaxLen <= 0 {
		c.ContextMaxLen = DefaultContextMaxLen
	}
	if c.RetrievalK <= 0 {
		c.RetrievalK = DefaultRetrievalK
	}
	return c
}

// Pipeline turns a citizen query into a safe reply. It is safe for
// concurrent use; the collaborators are shared read-only.
type Pipeline struct {
	cfg       Config
	llm       llm.Client
	retriever retrieval.Retriever
	sanitizer *Sanitizer
	greetings map[string]struct{}
	log       *slog.Logger
}

// NewPipeline wires the pipeline. retriever may be nil to disable context lookup.
func NewPipeline(cfg Config, client llm.Client, retriever retrieval.Retriever, log *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	greetings := make(map[string]struct{}, len(cfg.Template.Greetings))
	for _, g := range cfg.Template.Greetings {
		greetings[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	return &Pipeline{
		cfg:       cfg,
		llm:       client,
		retriever: retriever,
		sanitizer: NewSanitizer(cfg.MaxAnswerLen, cfg.Template.StopTokens...),
		greetings: greetings,
		log:       log.With("component", "answer", "variant", cfg.Template.Name),
	}
}

// Template returns the active prompt variant.
func (p *Pipeline) Template() Template { return p.cfg.Template }

// Answer runs the guarded generation flow. It never fails: every error path
// maps to one of the template's fixed replies.
func (p *Pipeline) Answer(ctx context.Context, query string) Result {
	replies := p.cfg.Template.Replies
	q := strings.TrimSpace(query)
	script := lang.DetectScript(q)

	if q == "" {
		return Result{Text: replies.EmptyQuery, Outcome: OutcomeEmptyQuery, Script: script}
	}
	if _, ok := p.greetings[strings.ToLower(q)]; ok {
		return Result{Text: replies.Greeting, Outcome: OutcomeGreeting, Script: script}
	}

	prompt := p.cfg.Template.Build(q, p.retrieveContext(ctx, q))

	raw, err := p.generate(ctx, prompt)
	if err != nil {
		p.log.Error("inference failed", "err", err)
		return Result{Text: replies.Unavailable, Outcome: OutcomeProviderFailure, Script: script}
	}

	// Some backends return the prompt followed by the completion.
	raw = strings.ReplaceAll(raw, prompt, "")
	clean := p.sanitizer.Sanitize(raw)

	if utf8.RuneCountInString(clean) < p.cfg.MinAnswerLen {
		p.log.Warn("degenerate answer", "raw_len", len(raw), "clean", clean)
		return Result{Text: replies.Clarify, Outcome: OutcomeDegenerate, Script: script}
	}

	if script == lang.ScriptKannada && replies.KannadaHint != "" {
		clean = p.sanitizer.Sanitize(replies.KannadaHint + "\n" + clean)
	}
	return Result{Text: clean, Outcome: OutcomeAnswered, Script: script}
}

// retrieveContext fetches supporting snippets; failures degrade to no context.
func (p *Pipeline) retrieveContext(ctx context.Context, q string) (out string) {
	if p.retriever == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("retriever panicked; answering without context", "panic", r)
			out = ""
		}
	}()
	snippets, err := p.retriever.Retrieve(ctx, q, p.cfg.RetrievalK)
	if err != nil {
		p.log.Warn("retrieval failed; answering without context", "err", err)
		return ""
	}
	if len(snippets) > p.cfg.RetrievalK {
		snippets = snippets[:p.cfg.RetrievalK]
	}
	return truncateRunes(strings.TrimSpace(strings.Join(snippets, " ")), p.cfg.ContextMaxLen)
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (raw string, err error) {
	if p.llm == nil {
		return "", fmt.Errorf("no inference backend configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference backend panicked: %v", r)
		}
	}()
	return p.llm.Generate(ctx, prompt)
}
