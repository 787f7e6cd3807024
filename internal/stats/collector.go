// Package stats turns relay events into identifier-free daily counters.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pennylane/internal/eventbus"
	"pennylane/internal/relay"
	"pennylane/internal/storage"
	"pennylane/pkg/logx"
)

// Collector buffers counters in memory until Flush writes them to the store.
type Collector struct {
	store storage.Store // nil when storage is disabled
	log   logx.Logger
	now   func() time.Time

	mu      sync.Mutex
	pending storage.Counters
	session storage.Counters
}

func New(store storage.Store, log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Collector{store: store, log: log.With(logx.String("comp", "stats")), now: time.Now}
}

// Observe folds one relay event into the pending counters.
func (c *Collector) Observe(e eventbus.Event) {
	var d storage.Counters
	switch e.Type {
	case relay.EventRegistered:
		if ev, ok := e.Data.(relay.RegisteredEvent); ok && ev.New {
			d.Registrations = 1
		}
	case relay.EventAnnounced:
		d.Announcements = 1
		if ev, ok := e.Data.(relay.AnnouncedEvent); ok {
			d.Delivered = int64(ev.Delivered)
			d.Failed = int64(ev.Failed)
		}
	case relay.EventSuppressed:
		d.Suppressed = 1
	case relay.EventPruned:
		if ev, ok := e.Data.(relay.PrunedEvent); ok {
			d.Pruned = int64(ev.Count)
		}
	default:
		return
	}
	c.log.Debug("relay event", logx.String("type", e.Type), logx.Any("data", e.Data))
	if d.IsZero() {
		return
	}
	c.mu.Lock()
	c.pending.Add(d)
	c.session.Add(d)
	c.mu.Unlock()
}

// Session returns the counters observed since start.
func (c *Collector) Session() storage.Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Flush writes pending counters under today's key. On failure they are
// kept for the next flush.
func (c *Collector) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	p := c.pending
	c.pending = storage.Counters{}
	c.mu.Unlock()
	if p.IsZero() {
		return nil
	}
	if err := c.store.AddCounters(ctx, storage.Day(c.now()), p); err != nil {
		c.mu.Lock()
		c.pending.Add(p)
		c.mu.Unlock()
		return fmt.Errorf("flush counters: %w", err)
	}
	return nil
}

// Totals returns persisted totals plus what is still pending.
func (c *Collector) Totals(ctx context.Context) (storage.Counters, error) {
	if c.store == nil {
		return storage.Counters{}, storage.ErrDisabled
	}
	t, err := c.store.Totals(ctx)
	if err != nil {
		return storage.Counters{}, err
	}
	c.mu.Lock()
	t.Add(c.pending)
	c.mu.Unlock()
	return t, nil
}

// Run consumes bus events until ctx is done, then flushes once more.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.Flush(fctx); err != nil {
				c.log.Warn("final flush failed", logx.Err(err))
			}
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}
