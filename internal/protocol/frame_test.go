package protocol

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	want := DM("alice", "bob", "meet at the usual spot")
	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("write message: %v", err)
	}

	got, err := ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if got.Kind != want.Kind || got.From != want.From || got.To != want.To || got.Body != want.Body {
		t.Fatalf("round trip mismatch: want=%#v got=%#v", want, got)
	}
}

func TestWriteMessageRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	big := Message{Kind: KindChat, From: "alice", Body: strings.Repeat("x", MaxFrameSize+1)}
	var buf bytes.Buffer
	err := WriteMessage(&buf, big)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadMessageRejectsGarbagePayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 4})
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})

	_, err := ReadMessage(bufio.NewReader(&buf))
	if err == nil {
		t.Fatalf("expected decode error for garbage payload")
	}
}

func TestHandshakeTokenRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteHandshakeOK(&buf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	ok, err := ReadHandshakeOK(&buf)
	if err != nil {
		t.Fatalf("read handshake: %v", err)
	}
	if !ok {
		t.Fatalf("expected handshake token to match")
	}
}
