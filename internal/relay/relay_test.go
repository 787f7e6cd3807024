package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pennylane/internal/eventbus"
	logx "pennylane/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

func TestRegisterTwiceKeepsCount(t *testing.T) {
	t.Parallel()
	req := require.New(t)
	r := newTestRelay()

	req.True(r.Register(5))
	req.False(r.Register(5))
	req.Equal(1, r.Status().RecipientCount)
}

func TestStatusPrunesBeforeReporting(t *testing.T) {
	t.Parallel()
	req := require.New(t)
	now := t0
	r := New(Config{TTL: time.Minute}, nopLogger(), WithClock(func() time.Time { return now }))
	r.Register(1)

	r.AnnounceNow(context.Background(), 10, newRecorder())
	req.Equal(Status{RecipientCount: 1, CacheSize: 1, TTL: time.Minute}, r.Status())

	now = t0.Add(time.Minute)
	req.Equal(0, r.Status().CacheSize)
}

func TestDefaultTTLAndApply(t *testing.T) {
	t.Parallel()
	req := require.New(t)
	r := New(Config{}, nopLogger())
	req.Equal(DefaultTTL, r.TTL())

	r.Apply(Config{TTL: 10 * time.Second})
	req.Equal(10*time.Second, r.TTL())
}

func TestRelayPublishesRedactedEvents(t *testing.T) {
	t.Parallel()
	req := require.New(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := New(Config{TTL: ttl}, nopLogger(), WithBus(bus), WithClock(func() time.Time { return t0 }))
	r.Register(123456789)
	r.Announce(context.Background(), -100987654321, t0, ttl, newRecorder())
	r.Announce(context.Background(), -100987654321, t0, ttl, newRecorder())
	r.Prune(t0.Add(ttl))

	var types []string
	for len(types) < 4 {
		select {
		case e := <-events:
			types = append(types, e.Type)
			if ev, ok := e.Data.(AnnouncedEvent); ok {
				req.Equal(logx.Redact(-100987654321), ev.Chat)
				req.Equal(1, ev.Delivered)
			}
			if ev, ok := e.Data.(RegisteredEvent); ok {
				req.NotContains(ev.Recipient, "123456789")
				req.True(ev.New)
			}
		case <-time.After(time.Second):
			req.FailNow("missing events", "got %v", types)
		}
	}
	req.Equal([]string{EventRegistered, EventAnnounced, EventSuppressed, EventPruned}, types)
}

func TestAnnouncePublishesLazyPrune(t *testing.T) {
	t.Parallel()
	req := require.New(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := New(Config{TTL: ttl}, nopLogger(), WithBus(bus), WithClock(func() time.Time { return t0 }))
	r.Announce(context.Background(), 1, t0, ttl, newRecorder())
	res := r.Announce(context.Background(), 2, t0.Add(ttl), ttl, newRecorder())
	req.Equal(1, res.Pruned)
	req.False(r.Cache().Contains(1))

	var types []string
	var pruned PrunedEvent
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
			if ev, ok := e.Data.(PrunedEvent); ok {
				pruned = ev
			}
		case <-time.After(time.Second):
			req.FailNow("missing events", "got %v", types)
		}
	}
	req.Equal([]string{EventAnnounced, EventPruned, EventAnnounced}, types)
	req.Equal(PrunedEvent{Count: 1}, pruned)
}
