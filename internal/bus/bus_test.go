package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundMessage_SessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "platform", ChatID: "123"}
	if got := msg.SessionKey(); got != "platform:123" {
		t.Errorf("SessionKey = %q, want platform:123", got)
	}
}

func TestMessageBus_DispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)

	got := make(chan OutboundMessage, 2)
	b.SubscribeOutbound("platform", func(msg OutboundMessage) { got <- msg })
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		t.Errorf("telegram subscriber got %+v", msg)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "nowhere", Content: "dropped"}
	b.Outbound <- OutboundMessage{Channel: "platform", ChatID: "1", Content: "hi"}

	select {
	case msg := <-got:
		if msg.Content != "hi" || msg.ChatID != "1" {
			t.Errorf("msg = %+v, want hi to 1", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dispatch")
	}
}

func TestMessageBus_MultipleSubscribers(t *testing.T) {
	b := NewMessageBus(1)

	count := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		b.SubscribeOutbound("platform", func(OutboundMessage) { count <- struct{}{} })
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "platform"}
	for i := 0; i < 2; i++ {
		select {
		case <-count:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d not called", i)
		}
	}
}

func TestMessageBus_DispatchStopsOnCancel(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.DispatchOutbound(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DispatchOutbound did not return after cancel")
	}
}
