package protocol

import (
	"testing"
	"time"
)

func TestChatBuilder(t *testing.T) {
	t.Parallel()

	m := Chat("alice", "hello room")
	if m.Kind != KindChat {
		t.Fatalf("expected KindChat, got %v", m.Kind)
	}
	if m.From != "alice" || m.Body != "hello room" {
		t.Fatalf("unexpected chat fields: %#v", m)
	}
}

func TestWithReceivedAtDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	m := Hello("bob", ProtocolVersion)
	if !m.ReceivedAt().IsZero() {
		t.Fatalf("expected zero ReceivedAt on fresh message")
	}
	stamped := m.WithReceivedAt(time.Now())
	if stamped.ReceivedAt().IsZero() {
		t.Fatalf("expected stamped copy to carry ReceivedAt")
	}
	if !m.ReceivedAt().IsZero() {
		t.Fatalf("expected original message to stay unstamped")
	}
}

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	m := Error(ErrRateLimited, "too many frames")
	if m.Kind != KindError || m.Code != ErrRateLimited {
		t.Fatalf("unexpected error message: %#v", m)
	}
}
