package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI answers through the Chat Completions API.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

func NewOpenAI(cfg Config) *OpenAI {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, cfg: cfg}
}

func (o *OpenAI) Respond(ctx context.Context, text, userID string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.cfg.SystemPrompt),
			openai.UserMessage(text),
		},
		MaxCompletionTokens: openai.Int(o.cfg.MaxTokens),
	}
	if o.cfg.Temperature > 0 {
		params.Temperature = openai.Float(o.cfg.Temperature)
	}
	if userID != "" {
		params.User = openai.String(userID)
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
