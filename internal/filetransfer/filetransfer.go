// Package filetransfer coordinates peer-to-peer file offers relayed
// through the server. The server never buffers a transfer to disk: each
// chunk received from the sender is forwarded directly to the recipient's
// outbound queue.
package filetransfer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatserver/internal/protocol"
	"chatserver/internal/roster"
)

// DecisionTimeout bounds how long a recipient has to Accept or Reject an
// offer before it is auto-aborted.
const DecisionTimeout = 60 * time.Second

// MaxOfferSize is the largest declared file size a FileOffer may carry.
const MaxOfferSize = 100 * 1024 * 1024

// State is a ticket's position in its lifecycle.
type State int

const (
	StateOffered State = iota
	StateAccepted
	StateStreaming
	StateDone
	StateAborted
)

var (
	ErrUnknownTicket      = errors.New("filetransfer: unknown ticket")
	ErrWrongState         = errors.New("filetransfer: ticket is not in the expected state")
	ErrSizeOverrun        = errors.New("filetransfer: transfer exceeded its declared size")
	ErrOfferTooLarge      = errors.New("filetransfer: declared size exceeds the offer limit")
	ErrSelfOffer          = errors.New("filetransfer: recipient must differ from sender")
	ErrIncompleteTransfer = errors.New("filetransfer: fewer bytes relayed than declared")
)

// Ticket tracks one offered file transfer.
type Ticket struct {
	ID       string
	From     string
	To       string
	FileName string
	Size     int64

	mu       sync.Mutex
	state    State
	received int64
	timer    *time.Timer
}

// Coordinator owns the live ticket table.
type Coordinator struct {
	roster *roster.Roster

	mu      sync.Mutex
	tickets map[string]*Ticket
}

// New returns a Coordinator that looks recipients up via r.
func New(r *roster.Roster) *Coordinator {
	return &Coordinator{roster: r, tickets: make(map[string]*Ticket)}
}

// Offer registers a new ticket, forwards the FileOffer to `to`, and starts
// the decision timer. A blank id is assigned a fresh UUID so two senders
// can never collide on the same ticket key. It returns ErrOfferTooLarge if
// size exceeds MaxOfferSize, ErrSelfOffer if to equals from, and
// ErrNoSuchUser (from roster) if the recipient is not connected.
func (c *Coordinator) Offer(id, from, to, fileName string, size int64) (*Ticket, error) {
	if size > MaxOfferSize {
		return nil, ErrOfferTooLarge
	}
	if to == from {
		return nil, ErrSelfOffer
	}
	handle, ok := c.roster.Get(to)
	if !ok {
		return nil, roster.ErrNoSuchUser
	}
	if id == "" {
		id = uuid.NewString()
	}

	t := &Ticket{ID: id, From: from, To: to, FileName: fileName, Size: size, state: StateOffered}
	c.mu.Lock()
	c.tickets[id] = t
	c.mu.Unlock()

	t.timer = time.AfterFunc(DecisionTimeout, func() { c.timeout(id) })

	if err := handle.Deliver(protocol.FileOffer(from, to, id, fileName, size)); err != nil {
		c.Abort(id, "delivery failed")
		return nil, err
	}
	return t, nil
}

func (c *Coordinator) timeout(id string) {
	c.mu.Lock()
	t, ok := c.tickets[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	t.mu.Lock()
	expired := t.state == StateOffered
	t.mu.Unlock()
	if expired {
		c.notifyAbort(t, protocol.ErrTransferTimeout, "decision window expired")
	}
}

// Accept moves a ticket from Offered to Accepted. Only the recipient may
// accept.
func (c *Coordinator) Accept(id, by string) error {
	t, err := c.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.To != by {
		return ErrWrongState
	}
	if t.state != StateOffered {
		return ErrWrongState
	}
	t.state = StateAccepted
	if t.timer != nil {
		t.timer.Stop()
	}
	return c.deliverTo(t.From, protocol.FileAccept(id))
}

// Reject moves a ticket from Offered to Aborted, notifying the sender.
func (c *Coordinator) Reject(id, by, reason string) error {
	t, err := c.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.To != by || t.state != StateOffered {
		t.mu.Unlock()
		return ErrWrongState
	}
	t.state = StateAborted
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	c.remove(id)
	return c.deliverTo(t.From, protocol.FileReject(id, reason))
}

// Chunk relays one chunk of an in-flight transfer from the sender to the
// recipient, tracking total bytes received against the declared size.
func (c *Coordinator) Chunk(id, from string, seq uint32, data []byte) error {
	t, err := c.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.From != from {
		t.mu.Unlock()
		return ErrWrongState
	}
	if t.state == StateAccepted {
		t.state = StateStreaming
	}
	if t.state != StateStreaming {
		t.mu.Unlock()
		return ErrWrongState
	}
	t.received += int64(len(data))
	overrun := t.received > t.Size
	t.mu.Unlock()

	if overrun {
		c.notifyAbort(t, protocol.ErrSizeOverrun, "transfer exceeded declared size")
		return ErrSizeOverrun
	}
	return c.deliverTo(t.To, protocol.FileChunk(id, seq, data))
}

// End finalizes a streaming ticket as Done and relays FileEnd. A ticket
// that ends with fewer bytes relayed than declared is aborted instead of
// completed, so every Done ticket satisfies bytes_relayed == offered size.
func (c *Coordinator) End(id, from string) error {
	t, err := c.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.From != from || t.state != StateStreaming {
		t.mu.Unlock()
		return ErrWrongState
	}
	if t.received != t.Size {
		t.mu.Unlock()
		c.notifyAbort(t, protocol.ErrSizeOverrun, "transfer ended before declared size was reached")
		return ErrIncompleteTransfer
	}
	t.state = StateDone
	t.mu.Unlock()

	c.remove(id)
	return c.deliverTo(t.To, protocol.FileEnd(id, true))
}

// Abort forcibly tears a ticket down, notifying both sender and recipient
// with a TransferAborted error carrying reason.
func (c *Coordinator) Abort(id, reason string) {
	t, err := c.get(id)
	if err != nil {
		return
	}
	c.notifyAbort(t, protocol.ErrTransferAborted, reason)
}

func (c *Coordinator) notifyAbort(t *Ticket, code protocol.ErrorCode, reason string) {
	t.mu.Lock()
	if t.state == StateDone || t.state == StateAborted {
		t.mu.Unlock()
		return
	}
	t.state = StateAborted
	if t.timer != nil {
		t.timer.Stop()
	}
	from, to := t.From, t.To
	t.mu.Unlock()

	c.remove(t.ID)
	msg := protocol.Error(code, reason)
	_ = c.deliverTo(from, msg)
	_ = c.deliverTo(to, msg)
}

// AbortAllFor aborts every ticket referencing username, on either side, for
// use during session teardown.
func (c *Coordinator) AbortAllFor(username string) {
	c.mu.Lock()
	var affected []*Ticket
	for _, t := range c.tickets {
		t.mu.Lock()
		touches := t.From == username || t.To == username
		t.mu.Unlock()
		if touches {
			affected = append(affected, t)
		}
	}
	c.mu.Unlock()

	for _, t := range affected {
		c.notifyAbort(t, protocol.ErrTransferAborted, "peer disconnected")
	}
}

func (c *Coordinator) get(id string) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[id]
	if !ok {
		return nil, ErrUnknownTicket
	}
	return t, nil
}

func (c *Coordinator) remove(id string) {
	c.mu.Lock()
	delete(c.tickets, id)
	c.mu.Unlock()
}

func (c *Coordinator) deliverTo(username string, msg protocol.Message) error {
	handle, ok := c.roster.Get(username)
	if !ok {
		return fmt.Errorf("filetransfer: %s is no longer connected", username)
	}
	return handle.Deliver(msg)
}
