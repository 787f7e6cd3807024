package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pennylane/internal/transport"
	"pennylane/internal/transport/transporttest"
	"pennylane/pkg/logx"
)

type hits struct {
	mu   sync.Mutex
	reqs []*Request
	wg   sync.WaitGroup
}

func (h *hits) handler(ctx context.Context, req *Request) error {
	h.mu.Lock()
	h.reqs = append(h.reqs, req)
	h.mu.Unlock()
	h.wg.Done()
	return nil
}

func (h *hits) all() []*Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Request(nil), h.reqs...)
}

func runRouter(t *testing.T, r *Router) chan transport.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(chatType transport.ChatType, chatID int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: chatID, ChatType: chatType, FromID: 7, Text: text,
	}}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}

func TestParseCommand(t *testing.T) {
	name, args, addressed, ok := ParseCommand("/BandAid@PennyBot now", "pennybot")
	require.True(t, ok)
	require.True(t, addressed)
	require.Equal(t, "bandaid", name)
	require.Equal(t, []string{"now"}, args)

	_, _, addressed, ok = ParseCommand("/bandaid@OtherBot", "pennybot")
	require.True(t, ok)
	require.False(t, addressed)

	_, _, _, ok = ParseCommand("hello there", "pennybot")
	require.False(t, ok)
}

func TestRoutesCommandsByScope(t *testing.T) {
	r := New(Config{Workers: 2, Username: "pennybot"}, transporttest.New(), logx.Nop())
	var groupHits, privHits, fallbackHits hits
	r.SetRegistry([]Command{
		{Name: "bandaid", Scope: ScopeGroup, Handle: groupHits.handler},
		{Name: "status", Scope: ScopePrivate, Handle: privHits.handler},
	}, nil)
	r.SetFallback(fallbackHits.handler)

	groupHits.wg.Add(1)
	privHits.wg.Add(1)
	fallbackHits.wg.Add(2)

	updates := runRouter(t, r)
	updates <- msg(transport.ChatSuperGroup, -100, "/bandaid@pennybot")
	updates <- msg(transport.ChatGroup, -101, "/bandaid@otherbot")
	updates <- msg(transport.ChatGroup, -102, "/status")
	updates <- msg(transport.ChatChannel, -103, "/bandaid")
	updates <- msg(transport.ChatPrivate, 7, "/status")
	updates <- msg(transport.ChatPrivate, 7, "hi penny")
	updates <- msg(transport.ChatPrivate, 7, "/bandaid")

	waitTimeout(t, &groupHits.wg)
	waitTimeout(t, &privHits.wg)
	waitTimeout(t, &fallbackHits.wg)

	g := groupHits.all()
	require.Len(t, g, 1)
	require.Equal(t, int64(-100), g[0].Chat.ChatID)
	require.NotEmpty(t, g[0].ReqID)
	require.Len(t, privHits.all(), 1)
	require.Len(t, fallbackHits.all(), 2)
}

func TestCallbackRouting(t *testing.T) {
	fa := transporttest.New()
	r := New(Config{Workers: 1}, fa, logx.Nop())
	var got sync.WaitGroup
	got.Add(1)
	var payload string
	r.SetRegistry(nil, []CallbackRoute{{
		Plugin: "pennylane", Action: "donate",
		Handle: func(_ context.Context, _ *Request, p string) error {
			payload = p
			got.Done()
			return nil
		},
	}})

	updates := runRouter(t, r)
	updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "x", Data: "nope:none"}}
	updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "y", ChatID: 1, Data: "pennylane:donate:stars"}}
	waitTimeout(t, &got)
	require.Equal(t, "stars", payload)
	require.Contains(t, fa.Answered(), "x")
}

func TestPanicInHandlerIsRecovered(t *testing.T) {
	r := New(Config{Workers: 1}, transporttest.New(), logx.Nop())
	var after hits
	after.wg.Add(1)
	r.SetRegistry([]Command{
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }},
		{Name: "ok", Handle: after.handler},
	}, nil)

	updates := runRouter(t, r)
	updates <- msg(transport.ChatPrivate, 1, "/boom")
	updates <- msg(transport.ChatPrivate, 1, "/ok")
	waitTimeout(t, &after.wg)
}

func TestMenuSkipsHiddenAndPublishes(t *testing.T) {
	fa := transporttest.New()
	r := New(Config{}, fa, logx.Nop())
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "/bandaid", Description: "Announce", Handle: noop},
		{Name: "start", Hidden: true, Handle: noop},
	}, nil)
	require.Equal(t, []transport.BotCommand{{Command: "bandaid", Description: "Announce"}}, r.Menu())
	require.NoError(t, r.PublishMenu(context.Background()))
	require.Equal(t, r.Menu(), fa.Menu())
}
