// Package session drives one client connection through its handshake,
// active message dispatch, and graceful teardown.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"chatserver/internal/broadcast"
	"chatserver/internal/filetransfer"
	"chatserver/internal/protocol"
	"chatserver/internal/ratelimit"
	"chatserver/internal/roster"
)

// State is a Session's position in its lifecycle.
type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OutboxSize is the depth of a session's direct-delivery outbound queue.
const OutboxSize = 256

// HelloTimeout bounds how long a freshly accepted connection has to send a
// valid Hello before the server gives up on it.
const HelloTimeout = 5 * time.Second

// DrainDeadline bounds how long the write pump keeps flushing queued
// outbound messages once teardown begins.
const DrainDeadline = 2 * time.Second

// MaxBadFrames is the number of consecutive malformed frames tolerated
// before a session is torn down.
const MaxBadFrames = 3

// MaxChatBody and MaxStatusText bound user-supplied text fields.
const (
	MaxChatBody   = 1024
	MaxStatusText = 64
)

// Leave reason tokens, matching the wire enum {quit,kick,drop,ban}. A
// console-triggered shutdown uses the additional "server-down" token.
const (
	ReasonQuit       = "quit"
	ReasonKick       = "kick"
	ReasonDrop       = "drop"
	ReasonBan        = "ban"
	ReasonServerDown = "server-down"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

var (
	// ErrInvalidUsername is returned when a Hello's username fails the
	// naming pattern.
	ErrInvalidUsername = errors.New("session: invalid username")
)

// Deps bundles the shared server-wide collaborators a Session dispatches
// against.
type Deps struct {
	Roster       *roster.Roster
	Bus          *broadcast.Bus
	FileTransfer *filetransfer.Coordinator
	Logger       *slog.Logger
	RateLimitCap int // 0 uses ratelimit.DefaultCapacity
}

// Session represents one accepted connection from handshake to teardown.
type Session struct {
	conn    net.Conn
	connMu  sync.Mutex // serializes every write to conn across readPump and writePump
	reader  *bufio.Reader
	deps    Deps
	limiter *ratelimit.Limiter
	log     *slog.Logger

	username string
	state    atomic.Int32

	outbox      chan protocol.Message
	busInbox    <-chan protocol.Message
	badFrames   int
	closeOnce   sync.Once
	closeReason string
	done        chan struct{}
}

// New wraps conn in a Session ready to be Run.
func New(conn net.Conn, deps Deps) *Session {
	return &Session{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		deps:    deps,
		limiter: ratelimit.New(deps.RateLimitCap),
		log:     deps.Logger,
		outbox:  make(chan protocol.Message, OutboxSize),
		done:    make(chan struct{}),
	}
}

// writeFrame writes m to the connection, holding connMu so it never
// interleaves with a concurrent per-frame ACK write from readPump.
func (s *Session) writeFrame(m protocol.Message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return protocol.WriteMessage(s.conn, m)
}

// writeAck writes the two-byte handshake-style ACK token that must follow
// every successfully parsed active-phase frame, per the wire codec's
// one-in-flight-message bound. Guarded by connMu against the write pump.
func (s *Session) writeAck() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return protocol.WriteHandshakeOK(s.conn)
}

// Deliver satisfies roster.Handle: it enqueues msg for the write pump
// without blocking, dropping the oldest queued message if the outbox is
// full.
func (s *Session) Deliver(msg protocol.Message) error {
	select {
	case s.outbox <- msg:
		return nil
	default:
	}
	select {
	case <-s.outbox:
	default:
	}
	select {
	case s.outbox <- msg:
	default:
	}
	return nil
}

// Close starts tearing the session down idempotently, recording reason for
// logging and for the Leave broadcast. It stops the read pump and gives the
// write pump up to DrainDeadline to flush any Leave/Kick frame already
// queued by the caller; Run closes the connection once both pumps exit.
func (s *Session) Close(reason string) error {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		s.state.Store(int32(StateClosed))
		close(s.done)
		_ = s.conn.SetReadDeadline(time.Now())
		_ = s.conn.SetWriteDeadline(time.Now().Add(DrainDeadline))
	})
	return nil
}

// Run drives the session to completion: handshake, then active dispatch
// until the peer disconnects, is kicked, or misbehaves. It always returns
// once the connection is fully torn down.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.teardown()
	}()

	if !s.handshake() {
		return
	}

	s.busInbox = s.deps.Bus.Subscribe(s.username)
	s.state.Store(int32(StateActive))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.writePump() }()
	go func() { defer wg.Done(); s.readPump(ctx) }()
	wg.Wait()
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		_ = s.conn.Close()
	})
	_ = s.conn.Close()
	if s.username != "" {
		s.deps.Bus.Unsubscribe(s.username)
		s.deps.FileTransfer.AbortAllFor(s.username)
		carryStatus := s.closeReason == ReasonDrop
		s.deps.Roster.Drop(s.username, carryStatus)
		s.deps.Bus.Publish(protocol.Leave(s.username, s.closeReason))
		s.log.Info("session closed", "username", s.username, "reason", s.closeReason)
	}
}

// handshake reads and validates the client's Hello, joins the roster, and
// sends Welcome + the handshake acknowledgement token. It returns false if
// the session should be abandoned without entering active dispatch.
func (s *Session) handshake() bool {
	_ = s.conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	m, err := protocol.ReadMessage(s.reader)
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			_ = s.writeFrame(protocol.Error(protocol.ErrMessageTooLarge, err.Error()))
		}
		s.log.Debug("handshake read failed", "err", err)
		return false
	}
	if m.Kind != protocol.KindHello {
		_ = s.writeFrame(protocol.Error(protocol.ErrBadFrame, "expected hello"))
		return false
	}
	if m.Version != protocol.ProtocolVersion {
		_ = s.writeFrame(protocol.VersionMismatch(protocol.ProtocolVersion))
		return false
	}
	if !usernamePattern.MatchString(m.Username) {
		_ = s.writeFrame(protocol.Error(protocol.ErrNameUnavailable, ErrInvalidUsername.Error()))
		return false
	}

	assigned, err := s.deps.Roster.Join(m.Username, s)
	if err != nil {
		code := protocol.ErrNameUnavailable
		if errors.Is(err, roster.ErrBanned) {
			code = protocol.ErrBanned
		}
		_ = s.writeFrame(protocol.Error(code, err.Error()))
		return false
	}
	s.username = assigned
	s.log = s.log.With("username", assigned)

	if err := s.writeFrame(protocol.Welcome(assigned)); err != nil {
		return false
	}
	if err := s.writeAck(); err != nil {
		return false
	}

	s.busInbox = s.deps.Bus.Subscribe(assigned)
	s.deps.Bus.Publish(protocol.Join(assigned))
	s.log.Info("session joined")
	return true
}

func (s *Session) readPump(ctx context.Context) {
	// Any exit path not covered below (an abrupt read error, or the
	// bad-frame threshold below) falls through to a plain "drop"; Close is
	// idempotent, so an explicit reason set on an earlier path always wins.
	defer s.Close(ReasonDrop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close(ReasonServerDown)
		case <-s.done:
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close(ReasonServerDown)
			return
		case <-s.done:
			return
		default:
		}

		m, err := protocol.ReadMessage(s.reader)
		if err != nil {
			if !errors.Is(err, protocol.ErrBadFrame) {
				if errors.Is(err, io.EOF) {
					_ = s.Close(ReasonQuit)
				}
				if errors.Is(err, protocol.ErrFrameTooLarge) {
					_ = s.Deliver(protocol.Error(protocol.ErrMessageTooLarge, err.Error()))
				}
				return
			}
			s.badFrames++
			_ = s.Deliver(protocol.Error(protocol.ErrBadFrame, err.Error()))
			if s.badFrames >= MaxBadFrames {
				s.log.Warn("too many malformed frames, dropping session")
				return
			}
			continue
		}
		s.badFrames = 0

		// The wire codec ACKs every successfully parsed frame before the
		// next read, bounding the sender to one in-flight message.
		if err := s.writeAck(); err != nil {
			return
		}

		if !s.limiter.Allow() {
			_ = s.Deliver(protocol.Error(protocol.ErrRateLimited, "slow down"))
			continue
		}

		if err := s.dispatch(m.WithReceivedAt(time.Now())); err != nil {
			s.log.Debug("dispatch error", "kind", m.Kind, "err", err)
		}
	}
}

func (s *Session) writePump() {
	flushDeadline := time.NewTimer(24 * time.Hour)
	flushDeadline.Stop()
	draining := false

	for {
		select {
		case m, ok := <-s.outbox:
			if !ok {
				return
			}
			if err := s.writeFrame(m); err != nil {
				return
			}
		case m, ok := <-s.busInbox:
			if !ok {
				return
			}
			if err := s.writeFrame(m); err != nil {
				return
			}
		case <-s.done:
			if !draining {
				draining = true
				flushDeadline.Reset(DrainDeadline)
			}
		case <-flushDeadline.C:
			return
		}

		if draining && len(s.outbox) == 0 {
			return
		}
	}
}

func (s *Session) dispatch(m protocol.Message) error {
	switch m.Kind {
	case protocol.KindChat:
		return s.handleChat(m)
	case protocol.KindDM:
		return s.handleDM(m)
	case protocol.KindRename:
		return s.handleRename(m)
	case protocol.KindListReq:
		return s.handleListReq()
	case protocol.KindStatus:
		return s.handleStatus(m)
	case protocol.KindFileOffer:
		return s.handleFileOffer(m)
	case protocol.KindFileAccept:
		return s.deps.FileTransfer.Accept(m.FileID, s.username)
	case protocol.KindFileReject:
		return s.deps.FileTransfer.Reject(m.FileID, s.username, m.Reason)
	case protocol.KindFileChunk:
		return s.deps.FileTransfer.Chunk(m.FileID, s.username, m.Seq, m.Chunk)
	case protocol.KindFileEnd:
		return s.deps.FileTransfer.End(m.FileID, s.username)
	default:
		return s.Deliver(protocol.Error(protocol.ErrBadFrame, fmt.Sprintf("unsupported kind %q", m.Kind)))
	}
}

func (s *Session) handleChat(m protocol.Message) error {
	body := m.Body
	if len(body) > MaxChatBody {
		return s.Deliver(protocol.Error(protocol.ErrMessageTooLarge, "chat body too long"))
	}
	s.deps.Bus.Publish(protocol.Chat(s.username, body))
	return nil
}

func (s *Session) handleDM(m protocol.Message) error {
	if len(m.Body) > MaxChatBody {
		return s.Deliver(protocol.Error(protocol.ErrMessageTooLarge, "dm body too long"))
	}
	delivered, err := s.deps.Roster.RouteDM(s.username, m.To, m.Body)
	if err != nil {
		if errors.Is(err, roster.ErrNoSuchUser) {
			return s.Deliver(protocol.Error(protocol.ErrNoSuchUser, m.To))
		}
		return err
	}
	return s.Deliver(protocol.DMAck(m.To, delivered))
}

func (s *Session) handleRename(m protocol.Message) error {
	if !usernamePattern.MatchString(m.NewName) {
		return s.Deliver(protocol.Error(protocol.ErrNameUnavailable, ErrInvalidUsername.Error()))
	}
	newName, err := s.deps.Roster.Rename(s.username, m.NewName)
	if err != nil {
		code := protocol.ErrNameUnavailable
		if errors.Is(err, roster.ErrBanned) {
			code = protocol.ErrBanned
		}
		return s.Deliver(protocol.Error(code, err.Error()))
	}
	old := s.username
	s.username = newName
	s.log = s.log.With("username", newName)
	s.deps.Bus.Publish(protocol.Rename(old, newName))
	return nil
}

func (s *Session) handleListReq() error {
	return s.Deliver(protocol.ListResp(s.deps.Roster.List()))
}

func (s *Session) handleStatus(m protocol.Message) error {
	text := m.Text
	if len(text) > MaxStatusText {
		return s.Deliver(protocol.Error(protocol.ErrMessageTooLarge, "status text too long"))
	}
	if err := s.deps.Roster.SetStatus(s.username, text); err != nil {
		return err
	}
	s.deps.Bus.Publish(protocol.Status(s.username, text))
	return nil
}

func (s *Session) handleFileOffer(m protocol.Message) error {
	// The server assigns the ticket ID rather than trusting the client's,
	// so two senders can never collide on the same key.
	t, err := s.deps.FileTransfer.Offer("", s.username, m.To, m.FileName, m.FileSize)
	if err != nil {
		switch {
		case errors.Is(err, roster.ErrNoSuchUser):
			return s.Deliver(protocol.Error(protocol.ErrNoSuchUser, m.To))
		case errors.Is(err, filetransfer.ErrOfferTooLarge):
			return s.Deliver(protocol.Error(protocol.ErrMessageTooLarge, "file exceeds the 100 MiB offer limit"))
		case errors.Is(err, filetransfer.ErrSelfOffer):
			return s.Deliver(protocol.Error(protocol.ErrBadFrame, "cannot offer a file to yourself"))
		}
		return err
	}
	return s.Deliver(protocol.FileOffer(s.username, m.To, t.ID, m.FileName, m.FileSize))
}

// Username returns the session's current (possibly renamed) username. It
// is empty until the handshake completes.
func (s *Session) Username() string { return s.username }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }
