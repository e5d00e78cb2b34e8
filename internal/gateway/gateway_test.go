package gateway

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kokonet/kokobot/internal/bus"
	"github.com/kokonet/kokobot/internal/config"
	"github.com/kokonet/kokobot/internal/llm"
	"github.com/kokonet/kokobot/internal/memory"
)

// mockCompleter implements llm.Completer with injectable behavior.
type mockCompleter struct {
	completeFn  func(msgs []llm.Message) (string, error)
	summarizeFn func(turns []memory.Turn) (string, error)

	completeCalls  int
	summarizeCalls int
	lastPrompt     []llm.Message
}

func (m *mockCompleter) Complete(_ context.Context, msgs []llm.Message) (string, error) {
	m.completeCalls++
	m.lastPrompt = msgs
	if m.completeFn != nil {
		return m.completeFn(msgs)
	}
	return "sure thing!", nil
}

func (m *mockCompleter) Summarize(_ context.Context, turns []memory.Turn) (string, error) {
	m.summarizeCalls++
	if m.summarizeFn != nil {
		return m.summarizeFn(turns)
	}
	return "a digest", nil
}

type testEnv struct {
	gw    *Gateway
	store *memory.Store
	llm   *mockCompleter
	now   time.Time
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Limits.FreeBudget = 0 // unlimited unless a test opts in
	if mutate != nil {
		mutate(cfg)
	}

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	env := &testEnv{
		store: store,
		llm:   &mockCompleter{},
		now:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	env.gw, err = NewWithOptions(cfg, Options{
		Completer: env.llm,
		Store:     store,
		Now:       func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	return env
}

func inbound(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "cli",
		SenderID:  "42",
		ChatID:    "42",
		Username:  "sam",
		Content:   content,
		Timestamp: time.Now(),
	}
}

// drainOutbound returns the next outbound message or reports none.
func (e *testEnv) drainOutbound() (bus.OutboundMessage, bool) {
	select {
	case out := <-e.gw.Bus().Outbound:
		return out, true
	default:
		return bus.OutboundMessage{}, false
	}
}

func TestChatSuccessRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.HandleInbound(context.Background(), inbound("hello there"))

	out, ok := env.drainOutbound()
	if !ok {
		t.Fatal("expected an outbound reply")
	}
	if out.Content != "sure thing!" || out.ChatID != "42" || out.Channel != "cli" {
		t.Errorf("outbound = %+v", out)
	}

	rec := env.store.GetOrCreate("42")
	if len(rec.History) != 2 {
		t.Fatalf("history length = %d, want user+assistant", len(rec.History))
	}
	if rec.History[0].Role != memory.RoleUser || rec.History[1].Role != memory.RoleAssistant {
		t.Errorf("history roles = %s, %s", rec.History[0].Role, rec.History[1].Role)
	}
	if rec.MsgCount != 1 {
		t.Errorf("MsgCount = %d, want 1", rec.MsgCount)
	}
	if rec.XP != memory.XPPerMessage {
		t.Errorf("XP = %d, want %d", rec.XP, memory.XPPerMessage)
	}
	if rec.Username != "sam" {
		t.Errorf("Username = %q, want the sender's handle remembered", rec.Username)
	}
}

// The allowed path must finish promptly: the chat cycle takes the
// store lock several times (mutate, summarize check, gate view) and a
// re-entrant grab anywhere in there wedges the whole store.
func TestChatAllowedPathCompletes(t *testing.T) {
	env := newTestEnv(t, nil)

	done := make(chan struct{})
	go func() {
		env.gw.HandleInbound(context.Background(), inbound("hello there"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("chat handler blocked on the allowed path")
	}
	if _, ok := env.drainOutbound(); !ok {
		t.Error("expected a reply after the handler returned")
	}

	// The store must still be usable afterwards.
	if got := env.store.Len(); got != 1 {
		t.Errorf("store users = %d, want 1", got)
	}
}

func TestChatUpstreamFailureConsumesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.llm.completeFn = func([]llm.Message) (string, error) {
		return "", fmt.Errorf("model down: %w", llm.ErrUpstream)
	}

	env.gw.HandleInbound(context.Background(), inbound("hello?"))

	if _, ok := env.drainOutbound(); ok {
		t.Error("failed completion must stay silent")
	}
	rec := env.store.GetOrCreate("42")
	if rec.MsgCount != 0 {
		t.Errorf("MsgCount = %d, failed turn must not consume budget", rec.MsgCount)
	}
	if !rec.LastMsgTime.IsZero() {
		t.Error("failed turn must not start the cooldown")
	}
	// The user's turn is still remembered.
	if len(rec.History) != 1 || rec.History[0].Role != memory.RoleUser {
		t.Errorf("history = %+v, want just the user turn", rec.History)
	}
}

func TestChatCooldownSilence(t *testing.T) {
	env := newTestEnv(t, nil)

	env.gw.HandleInbound(context.Background(), inbound("first"))
	if _, ok := env.drainOutbound(); !ok {
		t.Fatal("first message should get a reply")
	}

	env.now = env.now.Add(time.Second)
	env.gw.HandleInbound(context.Background(), inbound("too fast"))
	if _, ok := env.drainOutbound(); ok {
		t.Error("message inside cooldown should be ignored")
	}
	if env.llm.completeCalls != 1 {
		t.Errorf("completion calls = %d, gated turn must not hit the model", env.llm.completeCalls)
	}

	// The gated message is still observed and appended.
	rec := env.store.GetOrCreate("42")
	if len(rec.History) != 3 {
		t.Errorf("history length = %d, want 3 (user/assistant/user)", len(rec.History))
	}

	env.now = env.now.Add(5 * time.Second)
	env.gw.HandleInbound(context.Background(), inbound("ok now"))
	if _, ok := env.drainOutbound(); !ok {
		t.Error("message after cooldown should get a reply")
	}
}

func TestChatBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Limits.FreeBudget = 1
		cfg.Limits.CooldownSeconds = 0
	})

	env.gw.HandleInbound(context.Background(), inbound("first"))
	if _, ok := env.drainOutbound(); !ok {
		t.Fatal("first message should fit the budget")
	}

	env.now = env.now.Add(time.Hour)
	env.gw.HandleInbound(context.Background(), inbound("second"))
	if _, ok := env.drainOutbound(); ok {
		t.Error("over-budget message should be ignored")
	}
}

func TestChatPrivilegedSkipsXP(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Relationship.PrivilegedUser = "42"
	})

	env.gw.HandleInbound(context.Background(), inbound("hi"))
	if _, ok := env.drainOutbound(); !ok {
		t.Fatal("privileged user should get a reply")
	}
	rec := env.store.GetOrCreate("42")
	if rec.XP != 0 || rec.Level != 0 {
		t.Errorf("privileged user accrued xp=%d level=%d", rec.XP, rec.Level)
	}
}

func TestChatTriggersSummarization(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Memory.HistoryTrigger = 10
		cfg.Memory.HistoryRetain = 4
		cfg.Limits.CooldownSeconds = 0
	})

	env.store.Mutate("42", func(rec *memory.UserRecord) {
		for i := 0; i < 9; i++ {
			memory.Append(rec, memory.RoleUser, fmt.Sprintf("old turn %d", i))
		}
	})

	env.gw.HandleInbound(context.Background(), inbound("the tenth turn"))

	if env.llm.summarizeCalls != 1 {
		t.Fatalf("summarize calls = %d, want 1", env.llm.summarizeCalls)
	}
	rec := env.store.GetOrCreate("42")
	if rec.Summary != "a digest" {
		t.Errorf("Summary = %q", rec.Summary)
	}
	// 10 turns compacted to 4, then the assistant reply appended.
	if len(rec.History) != 5 {
		t.Errorf("history length = %d, want 5", len(rec.History))
	}
}

func TestPromptCarriesMemory(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.Mutate("42", func(rec *memory.UserRecord) {
		rec.Summary = "they bonded over cats"
		rec.Facts["pet"] = "a cat named miso"
		rec.Level = 2
	})

	env.gw.HandleInbound(context.Background(), inbound("hey"))

	if len(env.llm.lastPrompt) == 0 {
		t.Fatal("no prompt captured")
	}
	system := env.llm.lastPrompt[0]
	if system.Role != "system" {
		t.Fatalf("first message role = %q, want system", system.Role)
	}
	for _, want := range []string{"they bonded over cats", "a cat named miso", "Friend"} {
		if !strings.Contains(system.Content, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system.Content)
		}
	}
	last := env.llm.lastPrompt[len(env.llm.lastPrompt)-1]
	if last.Role != "user" || last.Content != "hey" {
		t.Errorf("last prompt message = %+v, want current user turn", last)
	}
}

func TestCommandLevelAndGift(t *testing.T) {
	env := newTestEnv(t, nil)

	env.gw.HandleInbound(context.Background(), inbound("/level"))
	out, ok := env.drainOutbound()
	if !ok || !strings.Contains(out.Content, "Stranger") {
		t.Fatalf("/level reply = %+v", out)
	}

	env.gw.HandleInbound(context.Background(), inbound("/gift"))
	env.drainOutbound()

	env.gw.HandleInbound(context.Background(), inbound("/level"))
	out, ok = env.drainOutbound()
	if !ok || !strings.Contains(out.Content, "Familiar") {
		t.Errorf("/level after gift = %+v, want Familiar", out)
	}
	if env.llm.completeCalls != 0 {
		t.Errorf("commands must not hit the model, calls = %d", env.llm.completeCalls)
	}
}

func TestCommandForgetTierCap(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.Mutate("42", func(rec *memory.UserRecord) {
		for i := 0; i < 10; i++ {
			memory.Append(rec, memory.RoleUser, fmt.Sprintf("turn %d", i))
		}
	})

	env.gw.HandleInbound(context.Background(), inbound("/forget 8"))
	out, ok := env.drainOutbound()
	if !ok || !strings.Contains(out.Content, "5") {
		t.Errorf("/forget reply = %+v, want free-tier cap of 5", out)
	}
	rec := env.store.GetOrCreate("42")
	if len(rec.History) != 5 {
		t.Errorf("history length = %d, want 5 after capped forget", len(rec.History))
	}
}

func TestCommandMimicUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.HandleInbound(context.Background(), inbound("/mimic"))
	out, ok := env.drainOutbound()
	if !ok || !strings.Contains(out.Content, "don't know you") {
		t.Errorf("/mimic for unknown user = %+v", out)
	}
}

func TestUnknownCommandSilent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.HandleInbound(context.Background(), inbound("/frobnicate"))
	if _, ok := env.drainOutbound(); ok {
		t.Error("unknown command should be ignored")
	}
	if env.llm.completeCalls != 0 {
		t.Error("unknown command must not hit the model")
	}
}

func TestChatNonUpstreamError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.llm.completeFn = func([]llm.Message) (string, error) {
		return "", errors.New("context canceled")
	}
	env.gw.HandleInbound(context.Background(), inbound("hi"))
	if _, ok := env.drainOutbound(); ok {
		t.Error("any completion error must stay silent")
	}
	rec := env.store.GetOrCreate("42")
	if rec.MsgCount != 0 {
		t.Errorf("MsgCount = %d, want 0", rec.MsgCount)
	}
}
