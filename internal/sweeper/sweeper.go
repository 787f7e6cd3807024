// Package sweeper prunes the announcement cache on a cron schedule so
// group ids are forgotten even when no further requests arrive.
package sweeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pennylane/internal/config"
	"pennylane/pkg/logx"
)

type Pruner interface {
	Now() time.Time
	Prune(now time.Time) int
}

type Flusher interface {
	Flush(ctx context.Context) error
}

type Sweeper struct {
	pruner  Pruner
	flusher Flusher // optional
	log     logx.Logger
	c       *cron.Cron

	mu    sync.Mutex
	spec  string
	entry cron.EntryID
}

// New schedules spec; an empty spec leaves the sweeper idle.
func New(spec string, p Pruner, f Flusher, log logx.Logger) (*Sweeper, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "sweeper"))
	cl := cronLogger{log: log}
	s := &Sweeper{
		pruner:  p,
		flusher: f,
		log:     log,
		c: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if err := s.Reschedule(spec); err != nil {
		return nil, err
	}
	return s, nil
}

// Reschedule replaces the job schedule; "" removes it.
func (s *Sweeper) Reschedule(spec string) error {
	spec = strings.TrimSpace(spec)
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec && (s.entry != 0 || spec == "") {
		return nil
	}
	var id cron.EntryID
	if spec != "" {
		var err error
		id, err = s.c.AddFunc(spec, s.run)
		if err != nil {
			return fmt.Errorf("sweep schedule %q: %w", spec, err)
		}
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
	}
	s.entry, s.spec = id, spec
	s.log.Debug("sweep scheduled", logx.String("spec", spec))
	return nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Sweep(ctx)
}

// Sweep prunes once and flushes counters.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n := s.pruner.Prune(s.pruner.Now())
	if s.flusher != nil {
		if err := s.flusher.Flush(ctx); err != nil {
			s.log.Warn("counter flush failed", logx.Err(err))
		}
	}
	return n
}

func (s *Sweeper) Start() { s.c.Start() }

// Stop halts the schedule and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
