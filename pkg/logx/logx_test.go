package logx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pennylane/internal/transport"
)

func TestRedactIsStableAndShort(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	a := Redact(-1001234567890)
	req.Equal(a, Redact(-1001234567890))
	req.Len(a, 9)
	req.Equal("#", a[:1])
	req.NotEqual(a, Redact(42))
	req.NotContains(a, "1234567890")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.in, zerolog.InfoLevel), tt.in)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	require.True(t, l.IsZero())
	l.Info("dropped", String("k", "v"))
	require.False(t, l.With(String("a", "b")).IsZero())
}

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	out := formatTelegramLine([]byte(`{"level":"warn","message":"send failed","time":"x","chat":"#abcd","attempt":2}`))
	req.Equal("[WARN] send failed\n- attempt=2\n- chat=#abcd", out)

	req.Equal("plain text", formatTelegramLine([]byte("  plain text \n")))
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
	got  chan struct{}
}

func (c *captureSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
	return transport.MessageRef{}, nil
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	req := require.New(t)
	sender := &captureSender{got: make(chan struct{}, 4)}

	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     -100,
			MinLevel:   "warn",
			RatePerSec: 10,
		},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("not forwarded")
	log.Warn("forwarded", String("k", "v"))

	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		req.Fail("telegram sink did not forward the warning")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	req.Len(sender.sent, 1)
	req.Contains(sender.sent[0], "[WARN] forwarded")
}
