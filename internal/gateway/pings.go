package gateway

import (
	"math/rand"
	"time"

	"github.com/kokonet/kokobot/internal/bus"
	"github.com/kokonet/kokobot/internal/memory"
)

var idleLines = []string{
	"Hehe... anyone here? 😏",
	"I'm bored... entertain me! 😂",
	"Just thinking about stuff... wanna hear? 🫣",
}

var awayLines = []string{
	"Heyyy 😏 remember me?",
	"It's been a while... miss me? 😜",
}

// idlePing posts a random line to the configured idle channel.
func (g *Gateway) idlePing() {
	if g.cfg.Pings.IdleChannel == "" || g.cfg.Pings.IdleChatID == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: g.cfg.Pings.IdleChannel,
		ChatID:  g.cfg.Pings.IdleChatID,
		Content: idleLines[rand.Intn(len(idleLines))],
	}
}

// awayPing nudges users who went quiet, at most once per quiet period.
func (g *Gateway) awayPing() {
	if g.cfg.Pings.IdleChannel == "" {
		return
	}
	now := g.now()
	threshold := time.Duration(g.cfg.Pings.AwayMinutes) * time.Minute

	type target struct{ userID string }
	var targets []target
	g.store.Range(func(userID string, rec *memory.UserRecord) {
		if rec.LastActive.IsZero() || now.Sub(rec.LastActive) < threshold {
			return
		}
		g.pingMu.Lock()
		pinged := g.pingedAt[userID]
		g.pingMu.Unlock()
		if pinged.After(rec.LastActive) {
			return
		}
		targets = append(targets, target{userID: userID})
	})

	for _, t := range targets {
		g.pingMu.Lock()
		g.pingedAt[t.userID] = now
		g.pingMu.Unlock()
		// Private chats share the user's identifier as chat id.
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: g.cfg.Pings.IdleChannel,
			ChatID:  t.userID,
			Content: awayLines[rand.Intn(len(awayLines))],
		}
	}
}
