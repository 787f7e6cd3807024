// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pennylane/pkg/logx"
)

type Notifier struct {
	enabled  bool
	watchdog bool
	log      logx.Logger

	// notify is daemon.SdNotify; replaced in tests.
	notify func(unsetEnv bool, state string) (bool, error)
	// interval is daemon.SdWatchdogEnabled; replaced in tests.
	interval func(unsetEnv bool) (time.Duration, error)
}

func New(enabled, watchdog bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled:  enabled,
		watchdog: watchdog,
		log:      log.With(logx.String("comp", "systemd")),
		notify:   daemon.SdNotify,
		interval: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) send(state string) {
	if !n.enabled {
		return
	}
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// WatchdogInterval is half of WATCHDOG_USEC, or zero when the watchdog is
// off for this process.
func (n *Notifier) WatchdogInterval() time.Duration {
	if !n.enabled || !n.watchdog {
		return 0
	}
	d, err := n.interval(false)
	if err != nil {
		n.log.Warn("reading watchdog interval failed", logx.Err(err))
		return 0
	}
	return d / 2
}

// RunWatchdog pings systemd until ctx is done. It returns immediately when
// the watchdog is not enabled.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	every := n.WatchdogInterval()
	if every <= 0 {
		return nil
	}
	n.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
