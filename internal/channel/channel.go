package channel

import (
	"context"

	"github.com/kokonet/kokobot/internal/bus"
)

// Channel is a gateway transport: it feeds inbound messages onto the
// bus and delivers outbound replies.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every channel shares: its name, the
// bus, and the optional sender allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allowed map[string]bool
	if len(allowFrom) > 0 {
		allowed = make(map[string]bool, len(allowFrom))
		for _, id := range allowFrom {
			allowed[id] = true
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether the sender passes the allow-list. An empty
// list allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if c.allowFrom == nil {
		return true
	}
	return c.allowFrom[senderID]
}
