package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"pennylane/internal/bandaid"
	"pennylane/internal/config"
	"pennylane/internal/eventbus"
	"pennylane/internal/notifier"
	"pennylane/internal/observability/debugsrv"
	"pennylane/internal/relay"
	"pennylane/internal/runtime/supervisor"
	"pennylane/internal/stats"
	"pennylane/internal/storage"
	"pennylane/internal/sweeper"
	"pennylane/internal/transport"
	telegram "pennylane/internal/transport/telegram/adapter"
	"pennylane/internal/transport/telegram/router"
	"pennylane/pkg/logx"
	"pennylane/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	relay   *relay.Relay
	notif   *notifier.Service
	stats   *stats.Collector
	router  *router.Router
	sweeper *sweeper.Sweeper
	sd      *systemd.Notifier
	debug   *debugsrv.Server // nil when disabled
	dsup    *supervisor.Supervisor

	updates chan transport.Update
}

// New wires every component from the loaded configuration. cfgm must have
// been loaded already.
func New(cfgm *config.Manager) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	ad.SetLogger(log.With(logx.String("comp", "telegram")))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bus := eventbus.New()

	rc, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	rel := relay.New(rc, log.With(logx.String("comp", "relay")), relay.WithBus(bus))
	notif := notifier.New(mapNotifierConfig(cfg), ad, log)
	collector := stats.New(store, log)

	h := bandaid.New(rel, notif, collector, log)
	r := router.New(router.Config{Username: ad.Username()}, ad, log)
	r.SetRegistry(h.Commands(), h.Callbacks())
	r.SetFallback(h.Fallback)

	sw, err := sweeper.New(cfg.Relay.Sweep, rel, collector, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		relay:   rel,
		notif:   notif,
		stats:   collector,
		router:  r,
		sweeper: sw,
		sd:      systemd.New(cfg.Systemd.Notify, cfg.Systemd.Watchdog, log),
		updates: make(chan transport.Update, 256),
	}
	if cfg.Debug.Enabled {
		a.debug = debugsrv.New(debugsrv.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}, a.statusSnapshot, log)
	}
	return a, nil
}

// statusSnapshot is the /statusz body: sizes and counters only.
func (a *App) statusSnapshot(ctx context.Context) any {
	st := a.relay.Status()
	out := map[string]any{
		"recipients":    st.RecipientCount,
		"cached_groups": st.CacheSize,
		"ttl":           st.TTL.String(),
		"session":       a.stats.Session(),
		"bus_dropped":   eventbus.Dropped(a.bus),
	}
	if totals, err := a.stats.Totals(ctx); err == nil {
		out["totals"] = totals
	}
	return out
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.log.Info("🎸 Penny Lane is starting up...")
	a.log.Info(fmt.Sprintf("🔒 Privacy mode: RAM-only storage with %s expiry", notifier.HumanTTL(a.relay.TTL())))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go("stats", func(c context.Context) error {
		return a.stats.Run(c, a.bus)
	})
	a.sup.Go("menu.publish", func(c context.Context) error {
		pctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.router.PublishMenu(pctx); err != nil {
			a.log.Warn("command menu not published", logx.Err(err))
		}
		return nil
	})
	a.sweeper.Start()

	a.sup.Go("eventbus.log", func(c context.Context) error {
		events, unsub := a.bus.Subscribe(128)
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", a.sd.RunWatchdog)

	if a.debug != nil {
		// Optional listener; its failures never stop the bot.
		a.dsup = supervisor.New(a.sup.Context(), supervisor.WithLogger(a.log), supervisor.WithCancelOnError(false))
		a.dsup.GoRestart("debug.http", a.debug.Serve,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			supervisor.WithMaxRestarts(5))
	}

	a.sd.Ready()
	a.log.Info("📡 Bot is now polling for updates...")
	return nil
}

// applyConfig pushes a committed config into the live components. Telegram
// and storage changes need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restartRequired(oldCfg, newCfg, sections) {
		a.log.Warn(s + " config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if rc, err := mapRelayConfig(newCfg); err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		a.relay.Apply(rc)
	}
	a.notif.Apply(mapNotifierConfig(newCfg))
	if err := a.sweeper.Reschedule(newCfg.Relay.Sweep); err != nil {
		a.log.Warn("invalid sweep schedule; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// restartRequired lists changed sections that are only read at startup.
func restartRequired(oldCfg, newCfg *config.Config, sections []string) []string {
	var out []string
	if oldCfg != nil && lo.Contains(sections, "telegram") {
		oa, errOld := mapAdapterConfig(oldCfg)
		na, errNew := mapAdapterConfig(newCfg)
		if errOld != nil || errNew != nil || oa != na {
			out = append(out, "telegram")
		}
	}
	for _, s := range []string{"storage", "debug"} {
		if lo.Contains(sections, s) {
			out = append(out, s)
		}
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Each step is bounded so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				<-done
				a.log.Info("stop step finished after deadline",
					logx.String("name", name), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("sweeper", 2*time.Second, a.sweeper.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	if a.dsup != nil {
		step("debug", time.Second, a.dsup.Wait)
	}
	// Waits for the router to drain and the stats collector's final flush.
	step("supervisor", 4*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	st := a.relay.Status()
	a.log.Info("🧹 All data cleared from memory",
		logx.Int("recipients", st.RecipientCount), logx.Int("cached_groups", st.CacheSize))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
