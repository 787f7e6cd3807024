package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	logx "pennylane/pkg/logx"
)

// Result is the outcome of one Announce call.
type Result struct {
	Delivered        int
	Failed           int
	AlreadyAnnounced bool
	// Pruned counts expired chats dropped by the prune that precedes the check.
	Pruned           int
}

// EngineConfig tunes the fan-out.
//
// Workers bounds concurrent deliveries per announcement (<= 0 means 8).
// AttemptTimeout bounds every Deliver call (0 disables).
type EngineConfig struct {
	Workers        int
	AttemptTimeout time.Duration
}

const defaultFanoutWorkers = 8

// Engine runs check -> fan-out -> mark under a per-chat lock.
type Engine struct {
	cache *Cache
	locks *chatLocks
	log   logx.Logger

	workers atomic.Int64
	timeout atomic.Int64 // time.Duration
}

func NewEngine(cache *Cache, cfg EngineConfig, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{cache: cache, locks: newChatLocks(), log: log}
	e.Apply(cfg)
	return e
}

// Apply updates fan-out settings for subsequent announcements.
func (e *Engine) Apply(cfg EngineConfig) {
	w := cfg.Workers
	if w <= 0 {
		w = defaultFanoutWorkers
	}
	e.workers.Store(int64(w))
	e.timeout.Store(int64(cfg.AttemptTimeout))
}

// Announce delivers chat to every recipient unless it was announced within
// the last ttl. The chat is marked announced after all attempts settle,
// whatever their outcome, including when recipients is empty.
func (e *Engine) Announce(ctx context.Context, chat ChatID, recipients []Recipient, now time.Time, ttl time.Duration, d Deliverer) Result {
	unlock := e.locks.lock(chat)
	defer unlock()

	pruned := len(e.cache.Prune(now))
	if e.cache.Contains(chat) {
		return Result{AlreadyAnnounced: true, Pruned: pruned}
	}

	ok, failed := e.fanout(ctx, recipients, d)
	e.cache.MarkAnnounced(chat, now, ttl)
	return Result{Delivered: ok, Failed: failed, Pruned: pruned}
}

func (e *Engine) fanout(ctx context.Context, recipients []Recipient, d Deliverer) (ok, failed int) {
	if len(recipients) == 0 {
		return 0, 0
	}
	timeout := time.Duration(e.timeout.Load())

	var okN, failN atomic.Int64
	var g errgroup.Group
	g.SetLimit(int(e.workers.Load()))
	for _, to := range recipients {
		g.Go(func() error {
			if err := e.attempt(ctx, to, timeout, d); err != nil {
				failN.Add(1)
				e.log.Warn("delivery failed", logx.ID("owner", int64(to)), logx.Err(err))
				return nil
			}
			okN.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(okN.Load()), int(failN.Load())
}

func (e *Engine) attempt(ctx context.Context, to Recipient, timeout time.Duration, d Deliverer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in deliverer", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("deliver panic: %v", r)
		}
	}()
	if d == nil {
		return fmt.Errorf("no deliverer")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.Deliver(ctx, to)
}
