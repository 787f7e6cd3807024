package app

import (
	"fmt"

	"pennylane/internal/config"
	"pennylane/internal/storage"
	"pennylane/pkg/logx"
)

// SelfCheck reports what the bot would start with. It opens and closes the
// configured store; a failure there is returned as an error.
func SelfCheck(cfg *config.Config) ([]string, error) {
	lines := make([]string, 0, 6)
	var tokenErr error
	if config.ValidToken(cfg.Telegram.Token) {
		lines = append(lines, "token: ok ("+config.MaskToken(cfg.Telegram.Token)+")")
	} else {
		lines = append(lines, "token: invalid ("+config.MaskToken(cfg.Telegram.Token)+")")
		tokenErr = config.ErrInvalidToken
	}

	anim := cfg.Relay.Animation
	if size, ok := config.AnimationStatus(anim); ok {
		lines = append(lines, fmt.Sprintf("animation: %s (%d bytes)", anim, size))
	} else {
		lines = append(lines, fmt.Sprintf("animation: %q not found, announcements will be text only", anim))
	}

	rc, err := mapRelayConfig(cfg)
	if err != nil {
		return lines, err
	}
	lines = append(lines, fmt.Sprintf("relay: ttl=%s workers=%d", rc.TTL, rc.FanoutWorkers))

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return lines, err
	}
	if !enabled {
		lines = append(lines, "storage: disabled")
		return lines, tokenErr
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		lines = append(lines, fmt.Sprintf("storage: %s at %s failed", sc.Driver, sc.Path))
		return lines, err
	}
	_ = st.Close()
	lines = append(lines, fmt.Sprintf("storage: %s at %s ok", sc.Driver, sc.Path))
	return lines, tokenErr
}
