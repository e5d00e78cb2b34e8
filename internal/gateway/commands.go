package gateway

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/kokonet/kokobot/internal/bus"
	"github.com/kokonet/kokobot/internal/memory"
)

var pingReplies = []string{
	"Yes? 😏",
	"I'm here, don't waste my time 😎",
	"Sup? 😜",
}

var funFacts = []string{
	"Did you know some cats recognize their humans and still ignore them? 😼",
	"Honey never spoils. Ever. 🫣",
	"Octopuses have three hearts and zero patience. 😏",
}

// forgetLimits caps how many turns /forget may drop per tier; premium
// is uncapped.
var forgetLimits = map[string]int{
	memory.TierFree:     5,
	memory.TierStandard: 20,
}

func (g *Gateway) handleCommand(msg bus.InboundMessage) {
	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	var reply string
	switch cmd {
	case "/start", "/setup":
		reply = g.cmdStart(msg)
	case "/ping":
		reply = pingReplies[rand.Intn(len(pingReplies))]
	case "/funfact":
		reply = funFacts[rand.Intn(len(funFacts))]
	case "/level", "/relationship":
		_, label := g.ledger.Level(msg.SenderID, msg.Username)
		reply = fmt.Sprintf("Relationship level: %s", label)
	case "/mimic":
		reply = g.cmdMimic(msg)
	case "/gift":
		g.ledger.Grant(msg.SenderID, msg.Username, memory.GiftXP)
		reply = "Yay! Gift received 😍 Relationship XP increased!"
	case "/forget":
		reply = g.cmdForget(msg, args)
	default:
		return
	}

	if reply == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	}
}

func (g *Gateway) cmdStart(msg bus.InboundMessage) string {
	rec := g.store.GetOrCreate(msg.SenderID)
	budget := g.gate.BudgetFor(rec.Tier)
	if budget <= 0 {
		return fmt.Sprintf("Setup complete! Tier: %s, unlimited messages.", rec.Tier)
	}
	return fmt.Sprintf("Setup complete! Tier: %s, %d messages total.", rec.Tier, budget)
}

func (g *Gateway) cmdMimic(msg bus.InboundMessage) string {
	var style memory.StyleStats
	found := g.store.View(msg.SenderID, func(rec *memory.UserRecord) {
		style = rec.Style
	})
	if !found {
		return "I don't know you well enough to mimic you yet 😏"
	}
	return fmt.Sprintf("Mimicking your style: lowercase_ratio=%.2f, emoji_usage=%.2f 😏", style.LowercaseRatio, style.EmojiRatio)
}

func (g *Gateway) cmdForget(msg bus.InboundMessage, args []string) string {
	count := 1
	if len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil && parsed > 0 {
			count = parsed
		}
	}

	unlock := g.store.LockUser(msg.SenderID)
	defer unlock()

	dropped := 0
	g.store.Mutate(msg.SenderID, func(rec *memory.UserRecord) {
		if limit, ok := forgetLimits[rec.Tier]; ok && count > limit {
			count = limit
		}
		dropped = memory.Forget(rec, count)
	})
	return fmt.Sprintf("Forgot the last %d messages 😏", dropped)
}
