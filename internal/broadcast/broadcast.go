// Package broadcast implements the fan-out bus: every connected session
// gets its own bounded inbox; a publish snapshots current subscribers,
// releases the bus lock, then attempts a non-blocking send to each.
// A full inbox has its oldest pending message dropped to make room for the
// new one, and the subscriber is notified with at most one synthetic
// Backpressure error per second.
package broadcast

import (
	"sync"
	"time"

	"chatserver/internal/protocol"
)

// DefaultBufferSize is the recommended per-subscriber inbox depth.
const DefaultBufferSize = 256

// backpressureWindow bounds how often a given subscriber is re-notified of
// drops.
const backpressureWindow = time.Second

type subscriber struct {
	inbox      chan protocol.Message
	mu         sync.Mutex
	lastNotice time.Time
}

// Bus fans chat-level broadcasts out to every subscribed session.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	bufLen int
}

// New returns a Bus whose subscriber inboxes hold bufLen messages.
func New(bufLen int) *Bus {
	if bufLen <= 0 {
		bufLen = DefaultBufferSize
	}
	return &Bus{subs: make(map[string]*subscriber), bufLen: bufLen}
}

// Subscribe registers username and returns the channel its broadcasts will
// arrive on. The caller (the session's write pump) drains this channel
// until Unsubscribe is called.
func (b *Bus) Subscribe(username string) <-chan protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscriber{inbox: make(chan protocol.Message, b.bufLen)}
	b.subs[username] = s
	return s.inbox
}

// Unsubscribe removes username and closes its inbox. Safe to call more
// than once.
func (b *Bus) Unsubscribe(username string) {
	b.mu.Lock()
	s, ok := b.subs[username]
	if ok {
		delete(b.subs, username)
	}
	b.mu.Unlock()
	if ok {
		close(s.inbox)
	}
}

// Publish fans msg out to every current subscriber, including the sender —
// chat broadcasts are sender-inclusive per the room's echo semantics.
func (b *Bus) Publish(msg protocol.Message) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.trySend(s, msg)
	}
}

// trySend delivers msg to s.inbox without blocking. If the inbox is full,
// it drops the single oldest queued message to make room, then retries
// once; if that still fails (a concurrent drain emptied and refilled it)
// the message is simply dropped. Either way, at most one Backpressure
// notice is queued per subscriber per backpressureWindow.
//
// Unsubscribe can close s.inbox concurrently with a Publish already holding
// this subscriber pointer; every send against it is guarded by recover so
// that race degrades to a dropped message instead of a panic.
func (b *Bus) trySend(s *subscriber, msg protocol.Message) {
	defer func() { recover() }()

	select {
	case s.inbox <- msg:
		return
	default:
	}

	select {
	case <-s.inbox:
	default:
	}

	select {
	case s.inbox <- msg:
	default:
	}

	s.mu.Lock()
	notify := time.Since(s.lastNotice) >= backpressureWindow
	if notify {
		s.lastNotice = time.Now()
	}
	s.mu.Unlock()

	if notify {
		select {
		case s.inbox <- protocol.Error(protocol.ErrBackpressure, "messages were dropped"):
		default:
		}
	}
}

// Count returns the number of current subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
