package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model  openai.ChatModel
	opts   Options
	client *openai.Client
}

// NewOpenAIClient builds a client with defaults against api.openai.com.
// Extra request options (e.g. option.WithBaseURL) are passed to the SDK.
func NewOpenAIClient(apiKey string, opts Options, reqOpts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	model := openai.ChatModel(opts.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, reqOpts...)...)
	return &OpenAIClient{
		model:  model,
		opts:   opts,
		client: &cli,
	}, nil
}

// Generate sends the prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{userMessage(prompt)},
		Temperature: openai.Float(c.opts.Temperature),
	}
	if c.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	resp, err := c.client.Chat.Completions.New(reqCtx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func userMessage(content string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(content),
			},
		},
	}
}
