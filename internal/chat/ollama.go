package chat

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "llama3.2"

// Ollama answers through a local Ollama server via langchaingo.
type Ollama struct {
	llm llms.Model
	cfg Config
}

func NewOllama(cfg Config) (*Ollama, error) {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &Ollama{llm: llm, cfg: cfg}, nil
}

func (o *Ollama) Respond(ctx context.Context, text, _ string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, o.cfg.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}
	callOpts := []llms.CallOption{llms.WithMaxTokens(int(o.cfg.MaxTokens))}
	if o.cfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(o.cfg.Temperature))
	}
	resp, err := o.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Content, nil
}
