package broadcast

import (
	"testing"
	"time"

	"chatserver/internal/protocol"
)

func TestPublishIsSenderInclusive(t *testing.T) {
	t.Parallel()

	b := New(4)
	inbox := b.Subscribe("alice")
	b.Publish(protocol.Chat("alice", "hello"))

	select {
	case m := <-inbox:
		if m.Body != "hello" {
			t.Fatalf("unexpected body %q", m.Body)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected sender to receive its own broadcast")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New(4)
	a := b.Subscribe("alice")
	c := b.Subscribe("bob")
	b.Publish(protocol.Chat("alice", "hi all"))

	for name, ch := range map[string]<-chan protocol.Message{"alice": a, "bob": c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive broadcast", name)
		}
	}
}

func TestPublishDropsOldestOnFullInbox(t *testing.T) {
	t.Parallel()

	b := New(1)
	inbox := b.Subscribe("alice")
	b.Publish(protocol.Chat("alice", "first"))
	b.Publish(protocol.Chat("alice", "second"))

	select {
	case m := <-inbox:
		if m.Body != "second" {
			t.Fatalf("expected oldest message dropped, got %q", m.Body)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a message in inbox")
	}
}

func TestUnsubscribeClosesInbox(t *testing.T) {
	t.Parallel()

	b := New(4)
	inbox := b.Subscribe("alice")
	b.Unsubscribe("alice")

	if _, ok := <-inbox; ok {
		t.Fatalf("expected closed inbox channel")
	}
	if b.Count() != 0 {
		t.Fatalf("expected no subscribers after unsubscribe")
	}
}

func TestPublishDoesNotPanicOnConcurrentUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New(4)
	b.Subscribe("alice")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.Publish(protocol.Chat("bob", "hi"))
		}
	}()

	for i := 0; i < 200; i++ {
		b.Subscribe("alice")
		b.Unsubscribe("alice")
	}
	<-done
}
