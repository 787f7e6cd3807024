package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pennylane/internal/transport"
)

// TextSender is the slice of the transport adapter the Telegram sink needs.
type TextSender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

const telegramLogLimit = 3500

type telegramItem struct {
	to  transport.ChatTarget
	msg string
}

// telegramSink is a zerolog.LevelWriter that queues log lines for an
// operator chat. Write never blocks: a full queue or an exhausted limiter
// drops the line.
type telegramSink struct {
	sender TextSender
	queue  chan telegramItem

	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	to       transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

func newTelegramSink(sender TextSender) *telegramSink {
	return &telegramSink{sender: sender, queue: make(chan telegramItem, 128)}
}

// configure reports whether the sink should be attached.
func (t *telegramSink) configure(cfg TelegramConfig) bool {
	if !cfg.Enabled || t.sender == nil {
		return false
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	t.mu.Lock()
	t.to = transport.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	t.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	if cfg.ChatID == 0 {
		fmt.Fprintln(Stderr(), "logx: telegram logging enabled but telegram.log_chat is not set")
		return false
	}
	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.run(ctx)
		}()
	})
	return true
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			_, _ = t.sender.SendText(ctx, it.to, it.msg, &transport.SendOptions{DisablePreview: true})
		}
	}
}

func (t *telegramSink) close() {
	if t.cancel != nil {
		t.cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, min, lim := t.to, t.minLevel, t.limiter
	t.mu.Unlock()

	if to.ChatID == 0 || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	msg := formatTelegramLine(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatTelegramLine renders one zerolog JSON line as "[LEVEL] msg" followed
// by sorted key=value lines.
func formatTelegramLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), telegramLogLimit)
	}
	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), telegramLogLimit)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
