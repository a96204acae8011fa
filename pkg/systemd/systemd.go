// Package systemd reports service state to systemd when the agent runs as
// a Type=notify unit. Every call is a no-op outside systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready signals that startup finished.
func Ready() bool { return notify(daemon.SdNotifyReady) }

// Stopping signals that shutdown began.
func Stopping() bool { return notify(daemon.SdNotifyStopping) }

// Watchdog pings the service watchdog.
func Watchdog() bool { return notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func Status(s string) bool { return notify("STATUS=" + s) }

// WatchdogInterval returns the configured WatchdogSec, or 0 when the
// watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

func notify(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	return ok && err == nil
}
