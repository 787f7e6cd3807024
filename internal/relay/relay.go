package relay

import (
	"context"
	"sync"
	"time"

	"pennylane/internal/eventbus"
	logx "pennylane/pkg/logx"
)

// DefaultTTL is how long an announced chat is remembered.
const DefaultTTL = 300 * time.Second

// Event types published on the bus. Payloads never carry raw ids.
const (
	EventRegistered = "relay.registered"
	EventAnnounced  = "relay.announced"
	EventSuppressed = "relay.suppressed"
	EventPruned     = "relay.pruned"
)

// Config configures a Relay.
type Config struct {
	TTL            time.Duration
	FanoutWorkers  int
	AttemptTimeout time.Duration
}

// Status is a diagnostics snapshot.
type Status struct {
	RecipientCount int
	CacheSize      int
	TTL            time.Duration
}

// AnnouncedEvent is the payload of EventAnnounced.
type AnnouncedEvent struct {
	Chat      string // redacted
	Delivered int
	Failed    int
}

// RegisteredEvent is the payload of EventRegistered.
type RegisteredEvent struct {
	Recipient string // redacted
	New       bool
}

// PrunedEvent is the payload of EventPruned.
type PrunedEvent struct {
	Count int
}

// Relay owns the registry, the announcement cache and the engine.
// Construct one per process and hand it to every handler.
type Relay struct {
	registry *Registry
	cache    *Cache
	engine   *Engine

	bus eventbus.Bus
	log logx.Logger
	now func() time.Time

	mu  sync.RWMutex
	ttl time.Duration
}

// Option customises a Relay.
type Option func(*Relay)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// WithBus publishes relay events on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(r *Relay) { r.bus = bus }
}

func New(cfg Config, log logx.Logger, opts ...Option) *Relay {
	if log.IsZero() {
		log = logx.Nop()
	}
	cache := NewCache()
	r := &Relay{
		registry: NewRegistry(),
		cache:    cache,
		engine:   NewEngine(cache, EngineConfig{Workers: cfg.FanoutWorkers, AttemptTimeout: cfg.AttemptTimeout}, log.With(logx.String("comp", "relay.engine"))),
		log:      log,
		now:      time.Now,
		ttl:      normalizeTTL(cfg.TTL),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTTL
	}
	return d
}

// Apply updates TTL and fan-out settings. Entries already cached keep the
// expiry they were marked with.
func (r *Relay) Apply(cfg Config) {
	r.mu.Lock()
	r.ttl = normalizeTTL(cfg.TTL)
	r.mu.Unlock()
	r.engine.Apply(EngineConfig{Workers: cfg.FanoutWorkers, AttemptTimeout: cfg.AttemptTimeout})
}

// Now reads the relay clock.
func (r *Relay) Now() time.Time { return r.now() }

func (r *Relay) TTL() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ttl
}

// Register opts p in and reports whether it was new.
func (r *Relay) Register(p Recipient) bool {
	added := r.registry.Register(p)
	r.publish(EventRegistered, RegisteredEvent{Recipient: logx.Redact(int64(p)), New: added})
	return added
}

// Announce fans chat out to the current recipients unless it was announced
// within ttl. The recipient set is snapshotted before the per-chat lock is
// taken, so registrations racing with a broadcast are either fully in or
// fully out.
func (r *Relay) Announce(ctx context.Context, chat ChatID, now time.Time, ttl time.Duration, d Deliverer) Result {
	recipients := r.registry.Snapshot()
	res := r.engine.Announce(ctx, chat, recipients, now, ttl, d)
	r.pruned(res.Pruned)
	if res.AlreadyAnnounced {
		r.publish(EventSuppressed, nil)
		return res
	}
	r.publish(EventAnnounced, AnnouncedEvent{Chat: logx.Redact(int64(chat)), Delivered: res.Delivered, Failed: res.Failed})
	return res
}

// AnnounceNow is Announce with the relay clock and configured TTL.
func (r *Relay) AnnounceNow(ctx context.Context, chat ChatID, d Deliverer) Result {
	return r.Announce(ctx, chat, r.Now(), r.TTL(), d)
}

// Prune forgets every chat whose window closed at or before now.
func (r *Relay) Prune(now time.Time) int {
	n := len(r.cache.Prune(now))
	r.pruned(n)
	return n
}

func (r *Relay) pruned(n int) {
	if n > 0 {
		r.log.Info("pruned expired group records", logx.Int("count", n))
		r.publish(EventPruned, PrunedEvent{Count: n})
	}
}

// Status prunes with the relay clock, then reports counts.
func (r *Relay) Status() Status {
	r.Prune(r.now())
	return Status{
		RecipientCount: r.registry.Count(),
		CacheSize:      r.cache.Size(),
		TTL:            r.TTL(),
	}
}

// Registry exposes the recipient set (read-mostly diagnostics and tests).
func (r *Relay) Registry() *Registry { return r.registry }

// Cache exposes the announcement cache.
func (r *Relay) Cache() *Cache { return r.cache }

func (r *Relay) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.now(), Data: data})
}
