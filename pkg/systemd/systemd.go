// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "homebot/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports READY=1. sent is false outside systemd.
func Ready() (sent bool, err error) {
	return notify(false, daemon.SdNotifyReady)
}

// Stopping reports STOPPING=1.
func Stopping() (sent bool, err error) {
	return notify(false, daemon.SdNotifyStopping)
}

// Status sets the free-form unit status line.
func Status(text string) (bool, error) {
	return notify(false, "STATUS="+text)
}

// WatchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings WATCHDOG=1 every interval until ctx is done.
// interval <= 0 returns immediately.
func RunWatchdog(ctx context.Context, interval time.Duration, log logx.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("systemd watchdog ping failed", logx.Err(err))
			}
		}
	}
}
