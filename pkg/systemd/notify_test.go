package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/require"

	"pennylane/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	rec := &recorder{}
	n := New(false, true, logx.Nop())
	n.notify = rec.notify
	n.Ready()
	n.Stopping()
	require.Zero(t, n.WatchdogInterval())
	require.Empty(t, rec.states)
}

func TestReadyAndStopping(t *testing.T) {
	rec := &recorder{}
	n := New(true, false, logx.Nop())
	n.notify = rec.notify
	n.Ready()
	n.Stopping()
	require.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, rec.states)
}

func TestWatchdogPingsAtHalfInterval(t *testing.T) {
	rec := &recorder{}
	n := New(true, true, logx.Nop())
	n.notify = rec.notify
	n.interval = func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }
	require.Equal(t, 10*time.Millisecond, n.WatchdogInterval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.RunWatchdog(ctx)
	}()
	require.Eventually(t, func() bool { return rec.count(daemon.SdNotifyWatchdog) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestWatchdogOffReturnsImmediately(t *testing.T) {
	n := New(true, true, logx.Nop())
	n.interval = func(bool) (time.Duration, error) { return 0, nil }
	require.NoError(t, n.RunWatchdog(context.Background()))
}
