// Package bandaid implements the bot's chat commands on top of the relay.
package bandaid

import (
	"context"
	"errors"
	"time"

	"pennylane/internal/notifier"
	"pennylane/internal/relay"
	"pennylane/internal/storage"
	"pennylane/internal/transport"
	"pennylane/internal/transport/telegram/router"
	"pennylane/pkg/logx"
	"pennylane/pkg/tgui"
)

// TotalsReader reports lifetime counters for /status. Optional.
type TotalsReader interface {
	Totals(ctx context.Context) (storage.Counters, error)
}

type Handlers struct {
	relay    *relay.Relay
	notifier *notifier.Service
	totals   TotalsReader
	log      logx.Logger
}

func New(r *relay.Relay, n *notifier.Service, totals TotalsReader, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{relay: r, notifier: n, totals: totals, log: log}
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "bandaid",
			Description: "Register privately or get group ID",
			Handle:      h.Bandaid,
		},
		{
			Name:        "help",
			Description: "Show help",
			Timeout:     10 * time.Second,
			Handle:      h.Help,
		},
		{
			// Telegram sends /start on first contact; answer with help
			// instead of the nudge. Registration stays an explicit /bandaid.
			Name:    "start",
			Scope:   router.ScopePrivate,
			Hidden:  true,
			Timeout: 10 * time.Second,
			Handle:  h.Help,
		},
		{
			Name:        "status",
			Description: "Show current memory usage",
			Scope:       router.ScopePrivate,
			Timeout:     10 * time.Second,
			Handle:      h.Status,
		},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{{
		Plugin:  notifier.CallbackPlugin,
		Action:  notifier.ActionDonate,
		Timeout: 10 * time.Second,
		Handle:  h.Donate,
	}}
}

// Bandaid registers in private chats and announces in groups.
func (h *Handlers) Bandaid(ctx context.Context, req *router.Request) error {
	req.Logger.Debug("bandaid received", logx.String("chat_type", string(req.ChatType)))
	switch {
	case req.ChatType == transport.ChatPrivate:
		return h.register(ctx, req)
	case req.ChatType.IsGroup():
		return h.announce(ctx, req)
	default:
		return nil
	}
}

func (h *Handlers) register(ctx context.Context, req *router.Request) error {
	if h.relay.Register(relay.Recipient(req.FromID)) {
		req.Logger.Info("registered new owner", logx.Int("owners", h.relay.Registry().Count()))
	}
	return req.Reply(ctx, onboardingText(h.relay.TTL()), nil)
}

func (h *Handlers) announce(ctx context.Context, req *router.Request) error {
	st, err := req.Adapter.MemberStatus(ctx, req.Chat.ChatID, req.FromID)
	switch {
	case err != nil:
		// An unverifiable caller is let through.
		req.Logger.Warn("could not verify admin status", logx.Err(err))
	case !st.IsAdmin():
		req.Logger.Info("non-admin tried /bandaid", logx.String("status", string(st)))
		return req.Reply(ctx, textNotAdmin, nil)
	}

	title := ""
	if m := req.Message(); m != nil {
		title = m.ChatTitle
	}
	ttl := h.relay.TTL()
	d := h.notifier.Announcement(notifier.Group{ID: req.Chat.ChatID, Title: title}, ttl)
	res := h.relay.Announce(ctx, relay.ChatID(req.Chat.ChatID), h.relay.Now(), ttl, d)

	if res.AlreadyAnnounced {
		return req.Reply(ctx, textAlreadySent, nil)
	}
	req.Logger.Info("group id sent", logx.Int("delivered", res.Delivered), logx.Int("failed", res.Failed))
	return req.Reply(ctx, sentText(res.Delivered), nil)
}

func (h *Handlers) Help(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, helpText(h.relay.TTL()), tgui.Options(nil))
}

// Status is private-only; the router enforces the scope.
func (h *Handlers) Status(ctx context.Context, req *router.Request) error {
	var totals *storage.Counters
	if h.totals != nil {
		c, err := h.totals.Totals(ctx)
		switch {
		case err == nil:
			totals = &c
		case !errors.Is(err, storage.ErrDisabled):
			req.Logger.Warn("reading totals failed", logx.Err(err))
		}
	}
	return req.Reply(ctx, statusText(h.relay.Status(), totals), tgui.Options(nil))
}

func (h *Handlers) Donate(ctx context.Context, req *router.Request, _ string) error {
	if cb := req.Update.Callback; cb != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
	}
	return req.Reply(ctx, donateText(), nil)
}

// Fallback nudges private chatters toward /bandaid.
func (h *Handlers) Fallback(ctx context.Context, req *router.Request) error {
	if req.ChatType != transport.ChatPrivate {
		return nil
	}
	return req.Reply(ctx, textNudge, nil)
}
