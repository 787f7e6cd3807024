package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "PENNY"

// Env holds the PENNY_* overrides. Set values win over the config file.
type Env struct {
	BotToken  string `envconfig:"BOT_TOKEN"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	TTL       string `envconfig:"TTL"`
	Animation string `envconfig:"ANIMATION"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	Storage   string `envconfig:"STORAGE"` // driver:path, e.g. sqlite:./data/penny.db
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadEnv reads the PENNY_* variables.
func ReadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Apply overlays the set variables on cfg. Debug forces DEBUG level and the
// debug log file.
func (e Env) Apply(cfg *Config) {
	if s := strings.TrimSpace(e.BotToken); s != "" {
		cfg.Telegram.Token = s
	}
	if s := strings.TrimSpace(e.TTL); s != "" {
		cfg.Relay.TTL = s
	}
	if s := strings.TrimSpace(e.Animation); s != "" {
		cfg.Relay.Animation = s
	}
	if s := strings.TrimSpace(e.LogLevel); s != "" {
		cfg.Logging.Level = s
	}
	if s := strings.TrimSpace(e.Storage); s != "" {
		driver, path, _ := strings.Cut(s, ":")
		cfg.Storage = &StorageConfig{Driver: driver, Path: path}
	}
	if e.Debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.File.Enabled = true
		if strings.TrimSpace(cfg.Logging.File.Path) == "" {
			cfg.Logging.File.Path = "penny_debug.log"
		}
	}
}
