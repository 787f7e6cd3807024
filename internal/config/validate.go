package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ErrInvalidToken reports a missing or malformed bot token.
var ErrInvalidToken = errors.New("invalid bot token: expected <bot id>:<secret>")

// CronParser accepts 5 or 6 field specs and descriptors such as "@every 1m".
// The sweeper schedules with it, so a spec that validates also schedules.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var tokenRe = regexp.MustCompile(`^[0-9]{8,}:[A-Za-z0-9_-]{20,}$`)

// ValidToken reports whether s looks like a Bot API token.
func ValidToken(s string) bool {
	return tokenRe.MatchString(strings.TrimSpace(s))
}

// MaskToken keeps the bot id and the last four characters of the secret.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	id, secret, ok := strings.Cut(s, ":")
	if !ok || len(secret) < 8 {
		return "<unset>"
	}
	return id + ":****" + secret[len(secret)-4:]
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("bottoken", func(fl validator.FieldLevel) bool {
			return ValidToken(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks struct tags, duration fields and the sweep schedule.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := structValidator().Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				if fe.Tag() == "bottoken" || fe.StructNamespace() == "Config.Telegram.Token" {
					return ErrInvalidToken
				}
			}
			return fmt.Errorf("invalid config: %w", err)
		}
		return err
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"relay.ttl", cfg.Relay.TTL},
		{"relay.deliver_timeout", cfg.Relay.DeliverTimeout},
	}
	if cfg.Storage != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", cfg.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if ttl, _ := ParseDurationField("relay.ttl", cfg.Relay.TTL); strings.TrimSpace(cfg.Relay.TTL) != "" && ttl == 0 {
		return errors.New("relay.ttl: must be > 0")
	}

	if s := strings.TrimSpace(cfg.Relay.Sweep); s != "" {
		if _, err := CronParser.Parse(s); err != nil {
			return fmt.Errorf("relay.sweep: %w", err)
		}
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChat == 0 {
		return errors.New("logging.telegram.enabled requires telegram.log_chat")
	}
	return nil
}

// AnimationStatus describes the configured animation file for the startup
// self-check. A missing file is not fatal; announcements fall back to text.
func AnimationStatus(path string) (size int64, ok bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, false
	}
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return 0, false
	}
	return st.Size(), true
}
