package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"homebot/internal/capability"
)

// ConsoleListener reads one utterance per line. A turn with no line before
// the timeout counts as silence. Lines typed after a turn gave up waiting
// (timeout or cancel) and before the next turn starts are dropped, so they
// never reach a later turn or another user's session.
type ConsoleListener struct {
	timeout time.Duration
	prompt  io.Writer

	once  sync.Once
	in    io.Reader
	lines chan heard
	eof   chan struct{}

	mu        sync.Mutex
	turn      uint64 // last turn started
	abandoned uint64 // highest turn that ended without a line
	scanned   uint64
}

// heard is a line tagged with the turn that was current when it was read.
type heard struct {
	text string
	turn uint64
}

var _ capability.Listener = (*ConsoleListener)(nil)

// NewConsoleListener reads from in; prompt (optional) receives a "> " marker per turn.
func NewConsoleListener(in io.Reader, prompt io.Writer, timeout time.Duration) *ConsoleListener {
	return &ConsoleListener{
		timeout: timeout,
		prompt:  prompt,
		in:      in,
		lines:   make(chan heard),
		eof:     make(chan struct{}),
	}
}

func (l *ConsoleListener) start() {
	go func() {
		defer close(l.eof)
		sc := bufio.NewScanner(l.in)
		for sc.Scan() {
			l.mu.Lock()
			h := heard{text: strings.TrimSpace(sc.Text()), turn: l.turn}
			l.scanned++
			l.mu.Unlock()
			l.lines <- h
		}
	}()
}

func (l *ConsoleListener) Listen(ctx context.Context) (string, error) {
	l.mu.Lock()
	l.turn++
	turn := l.turn
	l.mu.Unlock()

	l.once.Do(l.start)
	if l.prompt != nil {
		_, _ = io.WriteString(l.prompt, "> ")
	}

	var timeout <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		timeout = t.C
	}
	for {
		select {
		case h := <-l.lines:
			if l.stale(h) {
				continue
			}
			return h.text, nil
		case <-l.eof:
			return "", nil
		case <-timeout:
			l.abandon(turn)
			return "", nil
		case <-ctx.Done():
			l.abandon(turn)
			return "", ctx.Err()
		}
	}
}

func (l *ConsoleListener) abandon(turn uint64) {
	l.mu.Lock()
	if turn > l.abandoned {
		l.abandoned = turn
	}
	l.mu.Unlock()
}

func (l *ConsoleListener) stale(h heard) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return h.turn <= l.abandoned
}
