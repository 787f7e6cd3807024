package app

import (
	"fmt"
	"strings"
	"time"

	"pennylane/internal/config"
	"pennylane/internal/notifier"
	"pennylane/internal/relay"
	"pennylane/internal/storage"
	telegram "pennylane/internal/transport/telegram/adapter"
	"pennylane/pkg/logx"
)

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: poll,
		DropPending: cfg.Telegram.DropPending,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			// A missing target keeps the sink inert instead of warning on every line.
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.LogChat != 0,
			ChatID:     cfg.Telegram.LogChat,
			ThreadID:   cfg.Telegram.LogThread,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	ttl, err := config.ParseDurationOrDefault("relay.ttl", cfg.Relay.TTL, relay.DefaultTTL)
	if err != nil {
		return relay.Config{}, err
	}
	attempt, err := config.ParseDurationOrDefault("relay.deliver_timeout", cfg.Relay.DeliverTimeout, 10*time.Second)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		TTL:            ttl,
		FanoutWorkers:  cfg.Relay.FanoutWorkers,
		AttemptTimeout: attempt,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Animation:    strings.TrimSpace(cfg.Relay.Animation),
		RatePerSec:   cfg.Relay.RatePerSec,
		DonateButton: cfg.Relay.DonateButton,
	}
}

// mapStorageConfig reports enabled=false for a missing section or driver "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
