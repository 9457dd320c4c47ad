package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"village-assist/internal/lang"
	"village-assist/internal/llm"
	"village-assist/internal/retrieval"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPipeline(variant string, client llm.Client, r retrieval.Retriever) *Pipeline {
	return NewPipeline(Config{Template: builtinTemplates[variant]}, client, r, discard)
}

func TestAnswer(t *testing.T) {
	te := builtinTemplates["telugu"].Replies

	tests := []struct {
		name        string
		query       string
		setup       func(c *llm.MockClient, r *retrieval.MockRetriever)
		wantText    string
		wantOutcome Outcome
	}{
		{
			name:        "empty query",
			query:       "",
			wantText:    te.EmptyQuery,
			wantOutcome: OutcomeEmptyQuery,
		},
		{
			name:        "whitespace query",
			query:       " \t\n ",
			wantText:    te.EmptyQuery,
			wantOutcome: OutcomeEmptyQuery,
		},
		{
			name:        "greeting",
			query:       "hi",
			wantText:    te.Greeting,
			wantOutcome: OutcomeGreeting,
		},
		{
			name:        "greeting case insensitive",
			query:       "  NamasKaram ",
			wantText:    te.Greeting,
			wantOutcome: OutcomeGreeting,
		},
		{
			name:  "inference failure",
			query: "road is broken",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, "road is broken", DefaultRetrievalK).Return([]string{"roads rule"}, nil)
				c.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))
			},
			wantText:    te.Unavailable,
			wantOutcome: OutcomeProviderFailure,
		},
		{
			name:  "inference timeout",
			query: "road is broken",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
				c.On("Generate", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded)
			},
			wantText:    te.Unavailable,
			wantOutcome: OutcomeProviderFailure,
		},
		{
			name:  "dots only output",
			query: "water problem",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
				c.On("Generate", mock.Anything, mock.Anything).Return("....", nil)
			},
			wantText:    te.Clarify,
			wantOutcome: OutcomeDegenerate,
		},
		{
			name:  "too short output",
			query: "water problem",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
				c.On("Generate", mock.Anything, mock.Anything).Return("  ok  ", nil)
			},
			wantText:    te.Clarify,
			wantOutcome: OutcomeDegenerate,
		},
		{
			name:  "retrieval failure still answers",
			query: "pension status",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("store down"))
				c.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
					return strings.Contains(p, "pension status")
				})).Return("- visit the MeeSeva centre", nil)
			},
			wantText:    "- visit the MeeSeva centre",
			wantOutcome: OutcomeAnswered,
		},
		{
			name:  "sanitized answer",
			query: "ration card",
			setup: func(c *llm.MockClient, r *retrieval.MockRetriever) {
				r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]string{"ration rules"}, nil)
				c.On("Generate", mock.Anything, mock.Anything).Return("<s> - apply at the office, ref RZ/Z243679 </s>end_of_turn", nil)
			},
			wantText:    "- apply at the office, ref",
			wantOutcome: OutcomeAnswered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(llm.MockClient)
			r := new(retrieval.MockRetriever)
			if tt.setup != nil {
				tt.setup(client, r)
			}

			res := newTestPipeline("telugu", client, r).Answer(context.Background(), tt.query)

			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			if tt.setup == nil {
				client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
				r.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
			}
			client.AssertExpectations(t)
			r.AssertExpectations(t)
		})
	}
}

func TestAnswerGreetingSet(t *testing.T) {
	client := new(llm.MockClient)
	p := newTestPipeline("english", client, nil)

	for _, g := range []string{"hi", "Hi", "HELLO", "hey", "Namaste"} {
		res := p.Answer(context.Background(), g)
		assert.Equal(t, OutcomeGreeting, res.Outcome, g)
		assert.Equal(t, builtinTemplates["english"].Replies.Greeting, res.Text, g)
	}
	// Not an exact match.
	client.On("Generate", mock.Anything, mock.Anything).Return("- how can I help with your issue", nil)
	res := p.Answer(context.Background(), "hi there")
	assert.Equal(t, OutcomeAnswered, res.Outcome)

	client.AssertNumberOfCalls(t, "Generate", 1)
}

func TestAnswerContext(t *testing.T) {
	client := new(llm.MockClient)
	r := new(retrieval.MockRetriever)

	long := strings.Repeat("x", 2000)
	r.On("Retrieve", mock.Anything, "road", 2).Return([]string{"first", "second", "third"}, nil).Once()
	r.On("Retrieve", mock.Anything, "drain", 2).Return([]string{long}, nil).Once()

	var prompts []string
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.String(1)) }).
		Return("- contact the ward member", nil)

	p := NewPipeline(Config{Template: Template{Text: "[{{context}}] {{query}}"}, ContextMaxLen: 100}, client, r, discard)

	p.Answer(context.Background(), "road")
	p.Answer(context.Background(), "drain")

	if assert.Len(t, prompts, 2) {
		assert.Equal(t, "[first second] road", prompts[0])
		assert.Equal(t, "["+strings.Repeat("x", 100)+"] drain", prompts[1])
	}
}

func TestAnswerNoRetriever(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, "[] road").Return("- contact the ward member", nil)

	p := NewPipeline(Config{Template: Template{Text: "[{{context}}] {{query}}"}}, client, nil, discard)
	res := p.Answer(context.Background(), "road")

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	client.AssertExpectations(t)
}

func TestAnswerStripsPromptEcho(t *testing.T) {
	client := new(llm.MockClient)
	tmpl := Template{Text: "Q: {{query}}\nA:"}
	prompt := tmpl.Build("road broken", "")
	client.On("Generate", mock.Anything, prompt).Return(prompt+" - report to the panchayat", nil)

	res := NewPipeline(Config{Template: tmpl}, client, nil, discard).Answer(context.Background(), "road broken")

	assert.Equal(t, "- report to the panchayat", res.Text)
}

func TestAnswerKannadaHint(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("- గ్రామ కార్యదర్శిని సంప్రదించండి", nil)

	res := newTestPipeline("telugu", client, nil).Answer(context.Background(), "ರಸ್ತೆ ಹಾಳಾಗಿದೆ")

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, lang.ScriptKannada, res.Script)
	assert.True(t, strings.HasPrefix(res.Text, builtinTemplates["telugu"].Replies.KannadaHint+"\n"))
	assert.True(t, strings.HasSuffix(res.Text, "గ్రామ కార్యదర్శిని సంప్రదించండి"))
}

func TestAnswerLengthCap(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(strings.Repeat("- apply online ", 200), nil)

	p := NewPipeline(Config{Template: builtinTemplates["english"], MaxAnswerLen: 50}, client, nil, discard)
	res := p.Answer(context.Background(), "how to apply")

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Text), 50)
	assert.Equal(t, res.Text, NewSanitizer(50).Sanitize(res.Text))
}

type panicClient struct{}

func (panicClient) Generate(context.Context, string) (string, error) { panic("boom") }

func TestAnswerProviderPanicOrMissing(t *testing.T) {
	en := builtinTemplates["english"].Replies

	res := newTestPipeline("english", panicClient{}, nil).Answer(context.Background(), "road is broken")
	assert.Equal(t, en.Unavailable, res.Text)
	assert.Equal(t, OutcomeProviderFailure, res.Outcome)

	res = NewPipeline(Config{}, nil, nil, nil).Answer(context.Background(), "road is broken")
	assert.Equal(t, builtinTemplates["telugu"].Replies.Unavailable, res.Text)
}

func TestAnswerRemovesStopTokens(t *testing.T) {
	tests := []struct {
		variant string
		raw     string
		want    string
	}{
		{"english", "Answer: - Visit the mandal office for road repairs.", "- Visit the mandal office for road repairs."},
		{"english", "Answer (in bullet points):\n- Apply at MeeSeva", "- Apply at MeeSeva"},
		{"telugu", "సమాధానం: - మండల కార్యాలయాన్ని సంప్రదించండి", "- మండల కార్యాలయాన్ని సంప్రదించండి"},
	}
	for _, tt := range tests {
		client := new(llm.MockClient)
		client.On("Generate", mock.Anything, mock.Anything).Return(tt.raw, nil)

		res := newTestPipeline(tt.variant, client, nil).Answer(context.Background(), "road is broken")
		assert.Equal(t, OutcomeAnswered, res.Outcome)
		assert.Equal(t, tt.want, res.Text)
	}
}

func TestAnswerCustomStopTokens(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("Reply>> - call the ward member", nil)
	tmpl := Template{Text: "{{query}}", StopTokens: []string{"Reply>>"}}

	res := NewPipeline(Config{Template: tmpl}, client, nil, discard).Answer(context.Background(), "street light")
	assert.Equal(t, "- call the ward member", res.Text)
}

type panicRetriever struct{}

func (panicRetriever) Retrieve(context.Context, string, int) ([]string, error) { panic("index corrupted") }

func TestAnswerRetrieverPanic(t *testing.T) {
	client := new(llm.MockClient)
	prompt := builtinTemplates["english"].Build("road is broken", "")
	client.On("Generate", mock.Anything, prompt).Return("- report it to the gram panchayat", nil).Once()

	res := newTestPipeline("english", client, panicRetriever{}).Answer(context.Background(), "road is broken")

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "- report it to the gram panchayat", res.Text)
	client.AssertExpectations(t)
}
