package notifier

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pennylane/internal/relay"
	"pennylane/internal/transport"
	"pennylane/pkg/logx"
	"pennylane/pkg/tgui"
)

type Config struct {
	// Animation is sent with the announcement when the file exists.
	Animation string
	// RatePerSec caps outbound sends across all announcements (0 disables).
	RatePerSec   int
	DonateButton bool
}

// Service builds per-announcement deliverers sharing one rate limiter.
type Service struct {
	adapter transport.Adapter
	log     logx.Logger

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log.With(logx.String("comp", "notifier"))}
	s.Apply(cfg)
	return s
}

// Apply swaps the configuration; in-flight deliveries keep the old limiter.
func (s *Service) Apply(cfg Config) {
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = lim
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.limiter
}

// Announcement returns the deliverer for one announcement of g.
func (s *Service) Announcement(g Group, ttl time.Duration) relay.Deliverer {
	cfg, lim := s.snapshot()
	a := &announcement{
		svc:     s,
		text:    Text(g, ttl),
		limiter: lim,
		log:     s.log.With(logx.ID("chat", g.ID)),
	}
	if cfg.DonateButton {
		a.keyboard = DonateKeyboard()
	}
	if size, ok := animationFile(cfg.Animation); ok {
		a.animation = cfg.Animation
		a.log.Debug("announcing with animation", logx.Int64("bytes", size))
	} else if cfg.Animation != "" {
		a.log.Warn("animation file not found, sending text only", logx.String("path", cfg.Animation))
	}
	return a
}

func animationFile(path string) (int64, bool) {
	if path == "" {
		return 0, false
	}
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return 0, false
	}
	return st.Size(), true
}

type announcement struct {
	svc       *Service
	text      string
	animation string
	keyboard  *tgui.Inline
	limiter   *rate.Limiter
	log       logx.Logger
}

// Deliver sends the animation with caption and button, falling back to a
// plain Markdown text without the button when that fails.
func (a *announcement) Deliver(ctx context.Context, to relay.Recipient) error {
	target := transport.ChatTarget{ChatID: int64(to)}
	log := a.log.With(logx.ID("recipient", int64(to)))

	if err := a.wait(ctx); err != nil {
		return err
	}
	if a.animation == "" {
		_, err := a.svc.adapter.SendText(ctx, target, a.text, tgui.Options(a.keyboard))
		return err
	}

	_, err := a.svc.adapter.SendAnimation(ctx, target, a.animation, a.text, tgui.Options(a.keyboard))
	if err == nil {
		return nil
	}
	log.Warn("animation delivery failed, falling back to text", logx.Err(err))
	if err := a.wait(ctx); err != nil {
		return err
	}
	if _, err2 := a.svc.adapter.SendText(ctx, target, a.text, tgui.Options(nil)); err2 != nil {
		log.Error("text fallback failed", logx.Err(err2))
		return fmt.Errorf("animation: %v; text: %w", err, err2)
	}
	return nil
}

func (a *announcement) wait(ctx context.Context) error {
	if a.limiter == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}
