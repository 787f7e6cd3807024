package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pennylane/internal/config"
	"pennylane/internal/relay"
	"pennylane/pkg/logx"
)

type countingFlusher struct{ n atomic.Int32 }

func (f *countingFlusher) Flush(context.Context) error {
	f.n.Add(1)
	return nil
}

func TestSweepForgetsExpiredChats(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := relay.New(relay.Config{TTL: time.Minute}, logx.Nop(), relay.WithClock(func() time.Time { return now }))
	r.AnnounceNow(context.Background(), relay.ChatID(-1), relay.DelivererFunc(func(context.Context, relay.Recipient) error { return nil }))
	require.Equal(t, 1, r.Cache().Size())

	f := &countingFlusher{}
	s, err := New("", r, f, logx.Nop())
	require.NoError(t, err)

	require.Equal(t, 0, s.Sweep(context.Background()))
	require.Equal(t, 1, r.Cache().Size())

	now = now.Add(time.Minute)
	require.Equal(t, 1, s.Sweep(context.Background()))
	require.Equal(t, 0, r.Cache().Size())
	require.Equal(t, int32(2), f.n.Load())
}

func TestRescheduleValidatesSpec(t *testing.T) {
	r := relay.New(relay.Config{}, logx.Nop())
	s, err := New("@every 1m", r, nil, logx.Nop())
	require.NoError(t, err)
	require.Len(t, s.c.Entries(), 1)

	require.Error(t, s.Reschedule("every minute"))
	require.Len(t, s.c.Entries(), 1)

	require.NoError(t, s.Reschedule("*/30 * * * * *"))
	require.Len(t, s.c.Entries(), 1)

	require.NoError(t, s.Reschedule(""))
	require.Empty(t, s.c.Entries())

	_, err = New("nonsense", r, nil, logx.Nop())
	require.Error(t, err)
}

func TestScheduledSweepRuns(t *testing.T) {
	f := &countingFlusher{}
	s, err := New("@every 1s", relay.New(relay.Config{}, logx.Nop()), f, logx.Nop())
	require.NoError(t, err)
	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	require.Eventually(t, func() bool { return f.n.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestValidatedSpecsSchedule(t *testing.T) {
	r := relay.New(relay.Config{}, logx.Nop())
	for _, spec := range []string{"@every 1m", "*/30 * * * * *", "0 */5 * * *"} {
		cfg := config.Default()
		cfg.Telegram.Token = "123456789:AAH_abcdefghijklmnopqrstuvwxyz012"
		cfg.Relay.Sweep = spec
		require.NoError(t, config.Validate(&cfg), spec)

		s, err := New(spec, r, nil, logx.Nop())
		require.NoError(t, err, spec)
		require.NoError(t, s.Stop(context.Background()))
	}

	cfg := config.Default()
	cfg.Telegram.Token = "123456789:AAH_abcdefghijklmnopqrstuvwxyz012"
	cfg.Relay.Sweep = "every minute"
	require.Error(t, config.Validate(&cfg))
	_, err := New("every minute", r, nil, logx.Nop())
	require.Error(t, err)
}
