package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("300s", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Relay    RelayConfig    `json:"relay"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Systemd  SystemdConfig  `json:"systemd"`
	Debug    DebugConfig    `json:"debug"`
}

type TelegramConfig struct {
	// Token is normally supplied through PENNY_BOT_TOKEN; never logged.
	Token       string `json:"token" validate:"required,bottoken"`
	PollTimeout string `json:"poll_timeout"`
	// DropPending skips updates queued while the bot was offline.
	DropPending bool `json:"drop_pending"`
	// LogChat receives WARN+ log lines when logging.telegram.enabled is set.
	LogChat   int64 `json:"log_chat,omitempty"`
	LogThread int   `json:"log_thread,omitempty"`
}

// RelayConfig controls the ephemeral registry and broadcast engine.
type RelayConfig struct {
	TTL            string `json:"ttl"`
	FanoutWorkers  int    `json:"fanout_workers" validate:"gte=0,lte=256"`
	DeliverTimeout string `json:"deliver_timeout"`
	RatePerSec     int    `json:"rate_per_sec" validate:"gte=0,lte=1000"`
	// Animation is sent with every announcement when the file exists.
	Animation string `json:"animation"`
	// Sweep is a cron spec for the background prune ("" disables).
	Sweep        string `json:"sweep"`
	DonateButton bool   `json:"donate_button"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// StorageConfig controls the optional counters store.
//
//	storage: { driver: sqlite, path: ./data/pennylane.db }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SystemdConfig controls sd_notify integration. Both flags are no-ops when
// the process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// DebugConfig controls the optional health/pprof HTTP listener.
// A non-loopback Addr requires Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"omitempty,hostname_port"`
	Token   string `json:"token,omitempty"`
}

// Default returns the configuration used for omitted fields.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: "10s",
			DropPending: true,
		},
		Relay: RelayConfig{
			TTL:            "300s",
			FanoutWorkers:  8,
			DeliverTimeout: "10s",
			RatePerSec:     25,
			Animation:      "success.gif",
			Sweep:          "@every 1m",
			DonateButton:   true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "penny_debug.log"},
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
		Systemd: SystemdConfig{Notify: true, Watchdog: true},
		Debug:   DebugConfig{Addr: "127.0.0.1:6060"},
	}
}
