// Package adapter implements transport.Adapter on top of telebot.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"pennylane/internal/runtime/supervisor"
	"pennylane/internal/transport"
	"pennylane/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// DropPending discards updates queued while the bot was offline.
	DropPending bool
}

type Adapter struct {
	cfg Config
	log atomic.Pointer[logx.Logger]

	bot *tele.Bot
	out atomic.Pointer[chan<- transport.Update]

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	// dropped counts updates lost to a full consumer channel; reported periodically.
	dropped atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

var _ transport.Adapter = (*Adapter)(nil)

// New validates the token against getMe and registers the update handlers.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	a := &Adapter{cfg: cfg}
	a.SetLogger(log)
	b, err := tele.NewBot(a.settings())
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.bot = b
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) settings() tele.Settings {
	onError := func(err error, _ tele.Context) {
		a.logger().Warn("telegram handler error", logx.Err(err))
	}
	return tele.Settings{
		Token:   a.cfg.Token,
		Poller:  &tele.LongPoller{Timeout: a.cfg.PollTimeout},
		OnError: onError,
	}
}

// SetLogger swaps the logger; the log service itself is built after the adapter.
func (a *Adapter) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram.adapter"))
	a.log.Store(&log)
}

func (a *Adapter) logger() logx.Logger {
	if l := a.log.Load(); l != nil {
		return *l
	}
	return logx.Nop()
}

// Username is the bot's @username without the at sign.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	// unmatched commands fall through to OnText in telebot
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		if up, ok := callbackUpdate(c.Callback()); ok {
			a.forward(up)
		}
		return nil
	})
}

func messageUpdate(m *tele.Message) (transport.Update, bool) {
	if m == nil || m.Chat == nil {
		return transport.Update{}, false
	}
	msg := &transport.Message{
		ID:        m.ID,
		ChatID:    m.Chat.ID,
		ChatType:  transport.ChatType(m.Chat.Type),
		ChatTitle: m.Chat.Title,
		ThreadID:  m.ThreadID,
		Text:      m.Text,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return transport.Update{Kind: transport.UpdateMessage, Message: msg}, true
}

func callbackUpdate(cb *tele.Callback) (transport.Update, bool) {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return transport.Update{}, false
	}
	out := &transport.Callback{
		ID:        cb.ID,
		ChatID:    cb.Message.Chat.ID,
		ThreadID:  cb.Message.ThreadID,
		MessageID: cb.Message.ID,
		Data:      strings.TrimPrefix(cb.Data, "\f"),
	}
	if cb.Sender != nil {
		out.FromID = cb.Sender.ID
	}
	return transport.Update{Kind: transport.UpdateCallback, Callback: out}, true
}

func (a *Adapter) forward(up transport.Update) {
	p := a.out.Load()
	if p == nil || *p == nil {
		return
	}
	select {
	case *p <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	log := a.logger()

	if a.cfg.DropPending {
		if err := a.bot.RemoveWebhook(true); err != nil {
			log.Warn("dropping pending updates failed", logx.Err(err))
		}
	}

	a.running = true
	a.out.Store(&out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(log))
	sup := a.sup

	sup.Go("updates.drop_report", func(c context.Context) error {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return nil
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})
	// telebot's Start blocks until Stop; an early return is restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		log.Info("polling started", logx.String("bot", a.Username()))
		a.bot.Start()
		log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.logger().Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

// Stop never blocks shutdown longer than a short grace window; the long
// poll may still be waiting on Telegram.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.out.Store(nil)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.logger().Info("stopping")
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = min(grace, time.Until(dl))
	}
	wctx, cancel := context.WithTimeout(ctx, max(grace, 0))
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.logger().Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.logger().Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) sendOptions(to transport.ChatTarget, opt *transport.SendOptions, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok && withMarkup {
		so.ReplyMarkup = rm
	}
	return so
}

// SendText splits long text and attaches markup to the first chunk only.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, a.sendOptions(to, opt, i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendAnimation(ctx context.Context, to transport.ChatTarget, path, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	anim := &tele.Animation{File: tele.FromDisk(path), Caption: caption}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, anim, a.sendOptions(to, opt, true))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) MemberStatus(ctx context.Context, chatID, userID int64) (transport.MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return "", err
	}
	return transport.MemberStatus(m.Role), nil
}

// UpdateMenuCommands publishes the command menu (setMyCommands) when it
// differs from the last published one.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	list := menuCommands(cmds)
	h := fnv.New64a()
	for _, c := range list {
		h.Write([]byte(c.Text + "\x00" + c.Description + "\x00"))
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.logger().Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

func menuCommands(cmds []transport.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = name
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, tele.Command{Text: name, Description: d})
		if len(out) == 100 {
			break
		}
	}
	return out
}
