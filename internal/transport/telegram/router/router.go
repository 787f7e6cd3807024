// Package router turns transport updates into command and callback handler
// calls on a bounded worker pool.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pennylane/internal/runtime/supervisor"
	"pennylane/internal/transport"
	"pennylane/pkg/logx"
	"pennylane/pkg/tgui"
)

// Scope restricts where a command is accepted.
type Scope int

const (
	ScopeAny Scope = iota
	ScopePrivate
	ScopeGroup
)

func (s Scope) allows(t transport.ChatType) bool {
	switch s {
	case ScopePrivate:
		return t == transport.ChatPrivate
	case ScopeGroup:
		return t.IsGroup()
	default:
		return t == transport.ChatPrivate || t.IsGroup()
	}
}

type Command struct {
	Name        string // without the leading slash
	Aliases     []string
	Description string
	Scope       Scope
	// Hidden commands are routed but left out of the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline button data of the form "plugin:action[:payload]".
type CallbackRoute struct {
	Plugin  string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   transport.Update
	Chat     transport.ChatTarget
	ChatType transport.ChatType
	FromID   int64
	Command  string
	Args     []string
	Payload  string
	ReqID    string

	Adapter transport.Adapter
	Logger  logx.Logger
}

// Message returns the triggering message, nil for callbacks.
func (r *Request) Message() *transport.Message { return r.Update.Message }

// Reply sends text to the originating chat and thread.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Config struct {
	Workers  int
	QueueCap int
	// Username drops "/cmd@OtherBot" addressed to a different bot.
	Username string
}

type Router struct {
	cfg     Config
	log     logx.Logger
	adapter transport.Adapter

	mu        sync.RWMutex
	commands  map[string]Command
	menu      []transport.BotCommand
	callbacks map[string]CallbackRoute // plugin:action
	fallback  HandlerFunc

	jobs chan func(context.Context)
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 256
	}
	return &Router{
		cfg:       cfg,
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		jobs:      make(chan func(context.Context), cfg.QueueCap),
	}
}

// SetRegistry replaces the command and callback tables.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	commands := map[string]Command{}
	menu := make([]transport.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := normalizeName(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		commands[name] = c
		for _, a := range c.Aliases {
			if a = normalizeName(a); a != "" {
				commands[a] = c
			}
		}
		if !c.Hidden {
			menu = append(menu, transport.BotCommand{Command: name, Description: c.Description})
		}
	}
	callbacks := map[string]CallbackRoute{}
	for _, cb := range cbs {
		p, a := strings.TrimSpace(cb.Plugin), strings.TrimSpace(cb.Action)
		if p == "" || a == "" || cb.Handle == nil {
			continue
		}
		callbacks[p+":"+a] = cb
	}

	r.mu.Lock()
	r.commands = commands
	r.menu = menu
	r.callbacks = callbacks
	r.mu.Unlock()
}

// SetFallback handles private non-command text and unknown private commands.
func (r *Router) SetFallback(h HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// Menu returns the visible commands in registration order.
func (r *Router) Menu() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]transport.BotCommand(nil), r.menu...)
}

// PublishMenu pushes Menu to adapters that support a command menu.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(cctx, r.Menu())
}

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < r.cfg.Workers; i++ {
		sup.GoRestart("router.worker."+strconv.Itoa(i), r.worker,
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("dispatcher started", logx.Int("workers", r.cfg.Workers), logx.Int("queue_cap", cap(r.jobs)))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-r.jobs:
			job(ctx)
		}
	}
}

func (r *Router) enqueue(job func(context.Context)) bool {
	select {
	case r.jobs <- job:
		return true
	default:
		return false
	}
}

// Route resolves one update and queues its handler.
func (r *Router) Route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		r.routeMessage(ctx, up)
	case transport.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil || !ScopeAny.allows(msg.ChatType) {
		return
	}
	req := &Request{
		Update:   up,
		Chat:     transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		ChatType: msg.ChatType,
		FromID:   msg.FromID,
		Adapter:  r.adapter,
	}

	name, args, addressed, isCmd := ParseCommand(msg.Text, r.cfg.Username)
	if isCmd && !addressed {
		return
	}

	r.mu.RLock()
	cmd, found := r.commands[name]
	fallback := r.fallback
	r.mu.RUnlock()

	var (
		h       HandlerFunc
		timeout time.Duration
	)
	switch {
	case isCmd && found:
		if !cmd.Scope.allows(msg.ChatType) {
			if msg.ChatType == transport.ChatPrivate && fallback != nil {
				h = fallback
				break
			}
			return
		}
		req.Command, req.Args = name, args
		h, timeout = cmd.Handle, cmd.Timeout
	case msg.ChatType == transport.ChatPrivate && fallback != nil:
		req.Command, req.Args = name, args
		h = fallback
	default:
		return
	}

	r.dispatch(ctx, req, h, timeout, func() {
		_ = req.Reply(ctx, "Busy right now, please try again in a moment.", nil)
	})
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	plugin, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	key := plugin + ":" + action

	r.mu.RLock()
	route, found := r.callbacks[key]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := &Request{
		Update:  up,
		Chat:    transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: "cb:" + key,
		Payload: payload,
		Adapter: r.adapter,
	}
	h := func(ctx context.Context, req *Request) error { return route.Handle(ctx, req, payload) }
	r.dispatch(ctx, req, h, route.Timeout, func() {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	})
}

func (r *Router) dispatch(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, busy func()) {
	req.ReqID = uuid.NewString()
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.ID("chat", req.Chat.ChatID),
		logx.ID("from", req.FromID),
		logx.String("cmd", req.Command),
	)
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))
	if !r.enqueue(func(wctx context.Context) { _ = final(wctx, req) }) {
		req.Logger.Warn("dispatch queue full")
		busy()
	}
}

// ParseCommand splits "/name@bot arg..." into its parts. addressed is false
// when the command names a different bot than username.
func ParseCommand(text, username string) (name string, args []string, addressed, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, true, false
	}
	word := strings.TrimPrefix(fields[0], "/")
	addressed = true
	if at := strings.IndexByte(word, '@'); at >= 0 {
		target := word[at+1:]
		word = word[:at]
		if username != "" && !strings.EqualFold(target, username) {
			addressed = false
		}
	}
	return normalizeName(word), fields[1:], addressed, word != ""
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/"))
}
