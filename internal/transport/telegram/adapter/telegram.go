package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "homebot/internal/transport"
	logx "homebot/pkg/logx"
)

// Config configures the send-only Telegram adapter.
type Config struct {
	Token string
	// Owner receives SendOwnerText messages.
	Owner kit.ChatTarget
	// APIURL overrides the Bot API endpoint (tests, self-hosted bot API).
	APIURL  string
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Offline skips the getMe round trip; homebot never polls for updates.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Owner returns the configured owner chat.
func (a *Adapter) Owner() kit.ChatTarget { return a.cfg.Owner }

// SendOwnerText sends text to the owner chat. It satisfies logx.TextSender.
func (a *Adapter) SendOwnerText(ctx context.Context, text string) error {
	if a.cfg.Owner.ChatID == 0 {
		return errors.New("telegram owner chat id is not configured")
	}
	_, err := a.SendText(ctx, a.cfg.Owner, text, &kit.SendOptions{DisablePreview: true})
	return err
}

const telegramTextLimit = 4000

// Captions share the photo message and are limited separately.
const telegramCaptionLimit = 1024

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, fmt.Errorf("telegram send text: %w", err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendPhoto uploads photo.Data. A caption longer than Telegram allows is
// truncated on the photo and sent in full as a follow-up text message.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photo kit.Photo) (kit.MessageRef, error) {
	if len(photo.Data) == 0 {
		return kit.MessageRef{}, errors.New("telegram send photo: empty image")
	}
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	caption := photo.Caption
	overflow := false
	if rs := []rune(caption); len(rs) > telegramCaptionLimit {
		caption = string(rs[:telegramCaptionLimit])
		overflow = true
	}

	file := tele.FromReader(bytes.NewReader(photo.Data))
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Photo{File: file, Caption: caption}, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("telegram send photo: %w", err)
	}
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
	if overflow {
		if _, err := a.SendText(ctx, to, photo.Caption, nil); err != nil {
			a.log.Warn("photo caption follow-up failed", logx.Err(err))
		}
	}
	return ref, nil
}
