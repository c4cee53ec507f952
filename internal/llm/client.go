package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// jsonTemperature is used when the caller asks for structured output.
	jsonTemperature = 0.2
)

var ErrEmptyResponse = errors.New("llm returned no choices")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the chat contract every collaborator uses. Errors are fatal to
// the calling step.
type Client interface {
	Chat(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration // zero means no timeout
	MaxRetries int
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 API.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		model:   opts.Model,
		timeout: opts.Timeout,
	}
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toParams(messages),
	}
	if jsonMode {
		params.Temperature = openai.Float(jsonTemperature)
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", c.model, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion (%s): %w", c.model, ErrEmptyResponse)
	}
	return completion.Choices[0].Message.Content, nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var _ Client = (*OpenAIClient)(nil)
