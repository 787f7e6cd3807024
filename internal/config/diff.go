package config

import (
	"strings"

	"pennylane/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe attributes for
// the reload log line. The bot token never appears in the attributes.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.DropPending != nt.DropPending ||
		ot.LogChat != nt.LogChat || ot.LogThread != nt.LogThread {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.log_chat_set", nt.LogChat != 0),
		)
	}

	if oldCfg.Relay != newCfg.Relay {
		r := newCfg.Relay
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.String("relay.ttl", r.TTL),
			logx.Int("relay.fanout_workers", r.FanoutWorkers),
			logx.String("relay.deliver_timeout", r.DeliverTimeout),
			logx.Int("relay.rate_per_sec", r.RatePerSec),
			logx.String("relay.sweep", r.Sweep),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	if storageKey(oldCfg.Storage) != storageKey(newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage", storageKey(newCfg.Storage)))
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_changed", oldCfg.Debug.Token != newCfg.Debug.Token),
		)
	}
	return changed, attrs
}

func storageKey(s *StorageConfig) string {
	if s == nil {
		return "none"
	}
	return strings.ToLower(strings.TrimSpace(s.Driver)) + ":" + strings.TrimSpace(s.Path) + ":" + strings.TrimSpace(s.BusyTimeout)
}
