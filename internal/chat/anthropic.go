package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic answers through the Messages API.
type Anthropic struct {
	client *anthropic.Client
	cfg    Config
}

func NewAnthropic(cfg Config) *Anthropic {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, cfg: cfg}
}

func (a *Anthropic) Respond(ctx context.Context, text, userID string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(text))},
		System:    []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}},
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(a.cfg.Temperature)
	}
	if userID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(userID)}
	}
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
