package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kokonet/kokobot/internal/bus"
	"github.com/kokonet/kokobot/internal/channel"
	"github.com/kokonet/kokobot/internal/config"
	"github.com/kokonet/kokobot/internal/llm"
	"github.com/kokonet/kokobot/internal/memory"
	"github.com/kokonet/kokobot/internal/sched"
)

// Options for creating a Gateway with injectable pieces for testing.
type Options struct {
	Completer  llm.Completer
	Store      *memory.Store
	SignalChan chan os.Signal
	Now        func() time.Time
}

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	store    *memory.Store
	ledger   *memory.Ledger
	gate     *memory.Gate
	llm      llm.Completer
	channels *channel.ChannelManager
	sched    *sched.Service

	now        func() time.Time
	signalChan chan os.Signal

	pingMu   sync.Mutex
	pingedAt map[string]time.Time
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		signalChan: opts.SignalChan,
		pingedAt:   make(map[string]time.Time),
	}

	g.now = opts.Now
	if g.now == nil {
		g.now = time.Now
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	g.store = opts.Store
	if g.store == nil {
		store, err := memory.NewStore(config.MemoryPath(cfg))
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		g.store = store
	}

	privileged := cfg.Relationship.PrivilegedUser
	g.ledger = memory.NewLedger(g.store, cfg.Relationship.XPStep, privileged)
	g.gate = memory.NewGate(cfg.Limits.CooldownSeconds, map[string]int{
		memory.TierFree:     cfg.Limits.FreeBudget,
		memory.TierStandard: cfg.Limits.StandardBudget,
		memory.TierPremium:  cfg.Limits.PremiumBudget,
	}, privileged)

	g.llm = opts.Completer
	if g.llm == nil {
		g.llm = llm.New(cfg.Provider)
	}

	g.sched = sched.New(cfg.Pings)
	g.sched.OnDecay = g.ledger.Decay
	g.sched.OnIdlePing = g.idlePing
	g.sched.OnAwayPing = g.awayPing

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

// Bus exposes the message bus so embedders (the chat REPL) can attach
// their own channel.
func (g *Gateway) Bus() *bus.MessageBus {
	return g.bus
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.sched.Start(ctx); err != nil {
		log.Printf("[gateway] sched start warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.sched.Stop()
	_ = g.channels.StopAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// HandleInbound processes one inbound event synchronously. Exposed for
// the chat REPL, which has no channel loop.
func (g *Gateway) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	g.handleInbound(ctx, msg)
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if strings.HasPrefix(msg.Content, "/") {
		g.handleCommand(msg)
		return
	}
	g.handleChat(ctx, msg)
}

// handleChat runs the full memory cycle for one message: observe,
// grant XP, append, maybe summarize, gate, complete, persist the reply.
func (g *Gateway) handleChat(ctx context.Context, msg bus.InboundMessage) {
	userID := msg.SenderID
	now := g.now()

	unlock := g.store.LockUser(userID)
	defer unlock()

	privileged := g.ledger.IsPrivileged(userID, msg.Username)
	g.store.Mutate(userID, func(rec *memory.UserRecord) {
		if msg.Username != "" {
			rec.Username = msg.Username
		}
		memory.Observe(rec, msg.Content, now)
		if !privileged {
			memory.AddXP(rec, g.cfg.Relationship.XPStep, memory.XPPerMessage)
		}
		memory.Append(rec, memory.RoleUser, msg.Content)
	})

	if err := g.store.MaybeSummarize(userID, g.cfg.Memory.HistoryTrigger, g.cfg.Memory.HistoryRetain, g.summarize(ctx)); err != nil {
		// History stays intact; compaction retries on the next message.
		log.Printf("[gateway] summarize for %s failed: %v", userID, err)
	}

	// Resolved before View: Level takes the store lock itself.
	_, label := g.ledger.Level(userID, msg.Username)

	allowed := false
	var prompt []llm.Message
	g.store.View(userID, func(rec *memory.UserRecord) {
		allowed = g.gate.Allow(rec, userID, now)
		if allowed {
			prompt = buildPrompt(g.cfg.Persona, rec, label)
		}
	})
	if !allowed {
		log.Printf("[gateway] gate rejected reply to %s", userID)
		return
	}

	reply, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		// No reply produced: budget and cooldown stay untouched.
		if errors.Is(err, llm.ErrUpstream) {
			log.Printf("[gateway] completion failed for %s: %v", userID, err)
		} else {
			log.Printf("[gateway] completion error for %s: %v", userID, err)
		}
		return
	}
	if reply == "" {
		return
	}

	g.store.Mutate(userID, func(rec *memory.UserRecord) {
		memory.Append(rec, memory.RoleAssistant, reply)
		memory.RecordReply(rec, g.now())
	})

	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	}
}

func (g *Gateway) summarize(ctx context.Context) memory.SummarizeFunc {
	return func(turns []memory.Turn) (string, error) {
		return g.llm.Summarize(ctx, turns)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
