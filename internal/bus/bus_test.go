package bus

import (
	"context"
	"testing"
	"time"
)

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		got <- msg
	})
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"}

	select {
	case msg := <-got:
		if msg.ChatID != "42" || msg.Content != "hi" {
			t.Errorf("delivered = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched")
	}
}

func TestDispatchDropsUnsubscribed(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		got <- msg
	})
	go b.DispatchOutbound(ctx)

	// No subscriber for this channel: dropped, dispatch keeps running.
	b.Outbound <- OutboundMessage{Channel: "webui", Content: "lost"}
	b.Outbound <- OutboundMessage{Channel: "telegram", Content: "kept"}

	select {
	case msg := <-got:
		if msg.Content != "kept" {
			t.Errorf("delivered = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch stalled after an unsubscribed message")
	}
}

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", SenderID: "42", ChatID: "100"}
	if msg.SessionKey() != "telegram:100" {
		t.Errorf("session key = %q", msg.SessionKey())
	}
	other := InboundMessage{Channel: "webui", SenderID: "42", ChatID: "100"}
	if msg.SessionKey() == other.SessionKey() {
		t.Error("different channels must map to different sessions")
	}
}

func TestNewMessageBusMinimumBuffer(t *testing.T) {
	b := NewMessageBus(0)
	// Must not block: the buffer floor is one.
	b.Inbound <- InboundMessage{Content: "hi"}
	if msg := <-b.Inbound; msg.Content != "hi" {
		t.Errorf("message = %+v", msg)
	}
}
