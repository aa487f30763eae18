package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: ConversationNotification, Timestamp: time.Now(), Payload: "bob just sent you a nudge!"})

	select {
	case evt := <-ch:
		if evt.Kind != ConversationNotification {
			t.Errorf("got kind %q, want %s", evt.Kind, ConversationNotification)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("contact.", 10)
	defer unsub()

	b.Publish(Event{Kind: SessionStatusChanged})
	b.Publish(Event{Kind: ContactUpdated})

	select {
	case evt := <-ch:
		if evt.Kind != ContactUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, ContactUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: SessionStatusChanged})

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Publish(Event{Kind: MessageSent})
	b.Publish(Event{Kind: MessageSendFailed})

	evt := <-ch
	if evt.Kind != MessageSent {
		t.Errorf("got %q, want %s", evt.Kind, MessageSent)
	}
}

func TestClose(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	b.Close()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	late, _ := b.Subscribe("", 1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
	b.Publish(Event{Kind: SessionSignedOut})
}
