package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"homebot/internal/capability"
	logx "homebot/pkg/logx"
)

// ConsoleSpeaker writes "[TTS] <text>" lines.
type ConsoleSpeaker struct {
	mu  sync.Mutex
	out io.Writer
}

var _ capability.Speaker = (*ConsoleSpeaker)(nil)

func NewConsoleSpeaker(out io.Writer) *ConsoleSpeaker {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSpeaker{out: out}
}

func (s *ConsoleSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "[TTS] %s\n", text)
	return err
}

// CommandSpeaker runs argv with the text appended as the last argument.
type CommandSpeaker struct {
	mu   sync.Mutex
	argv []string
	log  logx.Logger
}

var _ capability.Speaker = (*CommandSpeaker)(nil)

func NewCommandSpeaker(argv []string, log logx.Logger) (*CommandSpeaker, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("voice: speak command is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandSpeaker{argv: append([]string(nil), argv...), log: log}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := append(append([]string(nil), s.argv[1:]...), text)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		s.log.Debug("speak command failed", logx.String("cmd", s.argv[0]), logx.String("output", msg), logx.Err(err))
		if msg != "" {
			return fmt.Errorf("speak %s: %w: %s", s.argv[0], err, msg)
		}
		return fmt.Errorf("speak %s: %w", s.argv[0], err)
	}
	return nil
}
