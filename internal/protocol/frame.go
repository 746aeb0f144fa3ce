package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the largest encoded payload the codec will read or write.
// A frame exceeding this on read yields ErrFrameTooLarge; the caller
// translates that into an ErrMessageTooLarge error to the peer.
const MaxFrameSize = 8192

// HandshakeOK is the literal 2-byte acknowledgement token sent by the
// server once a Hello has been accepted and a Welcome queued.
const HandshakeOK = "OK"

var (
	// ErrFrameTooLarge is returned by ReadMessage when the declared frame
	// length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")
	// ErrBadFrame wraps any failure to decode a frame's payload.
	ErrBadFrame = errors.New("protocol: malformed frame")
)

// WriteMessage encodes m as msgpack and writes it to w as a 4-byte
// big-endian length prefix followed by the payload.
func WriteMessage(w io.Writer, m Message) error {
	payload, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("protocol: encode message: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed frame from r and decodes its
// msgpack payload into a Message. It returns ErrFrameTooLarge if the
// declared length exceeds MaxFrameSize without consuming the payload, and
// ErrBadFrame (wrapping the underlying decode error) if the bytes read do
// not decode as a Message.
func ReadMessage(r *bufio.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return Message{}, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("protocol: read frame payload: %w", err)
	}

	var m Message
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return m, nil
}

// WriteHandshakeOK writes the literal handshake acknowledgement token.
func WriteHandshakeOK(w io.Writer) error {
	_, err := w.Write([]byte(HandshakeOK))
	return err
}

// ReadHandshakeOK reads exactly len(HandshakeOK) bytes and reports whether
// they match the expected token.
func ReadHandshakeOK(r io.Reader) (bool, error) {
	buf := make([]byte, len(HandshakeOK))
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, err
	}
	return string(buf) == HandshakeOK, nil
}
