// Package chat provides capability.Responder implementations: a local echo
// responder and adapters for OpenAI, Anthropic and Ollama.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homebot/internal/capability"
	logx "homebot/pkg/logx"
)

const DefaultSystemPrompt = "You are a friendly home assistant speaking out loud. Answer in one or two short sentences without markdown."

var ErrEmptyReply = errors.New("chat: empty reply")

type Config struct {
	Provider     string // echo (default), openai, anthropic, ollama
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "echo"
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// New returns the responder selected by cfg.Provider.
func New(cfg Config, log logx.Logger) (capability.Responder, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		r   capability.Responder
		err error
	)
	switch cfg.Provider {
	case "echo":
		r = Echo{}
	case "openai":
		r = NewOpenAI(cfg)
	case "anthropic":
		r = NewAnthropic(cfg)
	case "ollama":
		r, err = NewOllama(cfg)
	default:
		return nil, fmt.Errorf("chat: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &logged{next: r, cfg: cfg, log: log.With(logx.String("provider", cfg.Provider))}, nil
}

// Echo repeats the utterance back. It needs no network.
type Echo struct{}

func (Echo) Respond(_ context.Context, text, _ string) (string, error) {
	return "I heard: " + strings.TrimSpace(text), nil
}

// logged bounds each call by the configured timeout and logs failures.
type logged struct {
	next capability.Responder
	cfg  Config
	log  logx.Logger
}

func (l *logged) Respond(ctx context.Context, text, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := l.next.Respond(ctx, text, userID)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		l.log.Warn("chat respond failed", logx.String("user", userID), logx.Err(err), logx.Duration("took", time.Since(start)))
		return "", err
	}
	l.log.Debug("chat respond", logx.String("user", userID), logx.Int("reply_len", len(reply)), logx.Duration("took", time.Since(start)))
	return reply, nil
}
