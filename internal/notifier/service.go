package notifier

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	kit "homebot/internal/transport"
	logx "homebot/pkg/logx"
)

var ErrNoChannel = errors.New("alert channel not configured")

// Service implements capability.Alerter on top of a transport.Sender.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

var _ capability.Alerter = (*Service)(nil)

// New builds the alerter. A nil sender is allowed; every Notify then reports false.
func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, sender: sender, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	if s.limiter == nil || s.cfg.RatePerMin != cfg.RatePerMin {
		// Burst = a tenth of the per-minute budget so short spikes do not block.
		burst := max(cfg.RatePerMin/10, 1)
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), burst)
	}
	s.cfg = cfg
}

// Notify sends msg (and att, when non-nil) to the owner chat.
// It never panics; any failure is logged and reported as false.
func (s *Service) Notify(ctx context.Context, msg string, att *capability.Attachment) (ok bool) {
	s.mu.Lock()
	cfg, limiter := s.cfg, s.limiter
	s.mu.Unlock()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("alert panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			ok = false
		}
		s.finish(cfg, start, msg, att != nil, err)
	}()

	err = s.send(ctx, cfg, limiter, msg, att)
	return err == nil
}

func (s *Service) send(ctx context.Context, cfg Config, limiter *rate.Limiter, msg string, att *capability.Attachment) error {
	if s.sender == nil || cfg.Target.ChatID == 0 {
		return ErrNoChannel
	}
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := limiter.Wait(sendCtx); err != nil {
		return fmt.Errorf("alert rate limit: %w", err)
	}
	if att != nil && len(att.Data) > 0 {
		caption := att.Caption
		if caption == "" {
			caption = msg
		}
		_, err := s.sender.SendPhoto(sendCtx, cfg.Target, kit.Photo{Filename: att.Filename, Data: att.Data, Caption: caption})
		return err
	}
	_, err := s.sender.SendText(sendCtx, cfg.Target, msg, &kit.SendOptions{DisablePreview: true})
	return err
}

func (s *Service) finish(cfg Config, start time.Time, msg string, photo bool, err error) {
	item := HistoryItem{At: start, Text: msg, Photo: photo}
	ev := NotificationEvent{Channel: "telegram", ChatID: cfg.Target.ChatID, ThreadID: cfg.Target.ThreadID, At: start, Photo: photo}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		if errors.Is(err, ErrNoChannel) {
			s.log.Debug("alert skipped", logx.Err(err))
		} else {
			s.log.Warn("alert failed", logx.Err(err), logx.Bool("photo", photo), logx.Duration("took", time.Since(start)))
		}
		eventbus.Emit(s.bus, eventbus.TypeAlertFailed, ev)
	} else {
		s.log.Debug("alert sent", logx.Bool("photo", photo), logx.Duration("took", time.Since(start)))
		eventbus.Emit(s.bus, eventbus.TypeAlertSent, ev)
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > cfg.HistorySize {
		s.history = s.history[len(s.history)-cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

// History returns the most recent alert attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
