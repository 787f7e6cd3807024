// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	"pennylane/internal/transport"
)

// Sent is one outgoing message recorded by Adapter.
type Sent struct {
	To        transport.ChatTarget
	Text      string
	Animation string
	Options   transport.SendOptions
}

// Adapter records sends and answers MemberStatus from a table. Unknown
// members are reported as left.
type Adapter struct {
	mu        sync.Mutex
	sent      []Sent
	answered  []string
	menu      []transport.BotCommand
	members   map[[2]int64]transport.MemberStatus
	memberErr error
	sendErr   map[int64]error
	animErr   error
	nextID    int
}

var (
	_ transport.Adapter            = (*Adapter)(nil)
	_ transport.CommandMenuUpdater = (*Adapter)(nil)
)

func New() *Adapter {
	return &Adapter{
		members: map[[2]int64]transport.MemberStatus{},
		sendErr: map[int64]error{},
	}
}

func (a *Adapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *Adapter) Stop(context.Context) error                          { return nil }

// SetMember sets userID's status in chatID.
func (a *Adapter) SetMember(chatID, userID int64, st transport.MemberStatus) {
	a.mu.Lock()
	a.members[[2]int64{chatID, userID}] = st
	a.mu.Unlock()
}

// FailMembers makes every MemberStatus call return err.
func (a *Adapter) FailMembers(err error) {
	a.mu.Lock()
	a.memberErr = err
	a.mu.Unlock()
}

// FailSends makes sends to chatID return err.
func (a *Adapter) FailSends(chatID int64, err error) {
	a.mu.Lock()
	a.sendErr[chatID] = err
	a.mu.Unlock()
}

// FailAnimations makes every SendAnimation call return err.
func (a *Adapter) FailAnimations(err error) {
	a.mu.Lock()
	a.animErr = err
	a.mu.Unlock()
}

func (a *Adapter) record(s Sent) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.sendErr[s.To.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	a.nextID++
	a.sent = append(a.sent, s)
	return transport.MessageRef{ChatID: s.To.ChatID, ThreadID: s.To.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	s := Sent{To: to, Text: text}
	if opt != nil {
		s.Options = *opt
	}
	return a.record(s)
}

func (a *Adapter) SendAnimation(ctx context.Context, to transport.ChatTarget, path, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	a.mu.Lock()
	animErr := a.animErr
	a.mu.Unlock()
	if animErr != nil {
		return transport.MessageRef{}, animErr
	}
	s := Sent{To: to, Text: caption, Animation: path}
	if opt != nil {
		s.Options = *opt
	}
	return a.record(s)
}

func (a *Adapter) AnswerCallback(_ context.Context, id string, _ string) error {
	a.mu.Lock()
	a.answered = append(a.answered, id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) MemberStatus(_ context.Context, chatID, userID int64) (transport.MemberStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.memberErr != nil {
		return "", a.memberErr
	}
	st, ok := a.members[[2]int64{chatID, userID}]
	if !ok {
		return transport.MemberLeft, nil
	}
	return st, nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]transport.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

// Sent returns a copy of every successful send.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// SentTo returns the sends addressed to chatID.
func (a *Adapter) SentTo(chatID int64) []Sent {
	var out []Sent
	for _, s := range a.Sent() {
		if s.To.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) Answered() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.answered...)
}

func (a *Adapter) Menu() []transport.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]transport.BotCommand(nil), a.menu...)
}
