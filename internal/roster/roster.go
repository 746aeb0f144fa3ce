// Package roster owns the authoritative username -> session mapping, the
// ban list, and name collision resolution.
package roster

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"chatserver/internal/protocol"
)

// ghostTTL is how long a dropped (not quit/kicked/banned) session's status
// text is retained so a prompt reconnect under the same name inherits it.
const ghostTTL = 60 * time.Second

// maxCollisionAttempts bounds how many random suffixes Join will try before
// giving up with ErrNameUnavailable.
const maxCollisionAttempts = 5

var (
	// ErrNameUnavailable is returned by Join when no free name could be
	// derived for the requested username.
	ErrNameUnavailable = errors.New("roster: no available name")
	// ErrBanned is returned by Join when the requested username is banned.
	ErrBanned = errors.New("roster: username is banned")
	// ErrNoSuchUser is returned by operations addressing an unknown user.
	ErrNoSuchUser = errors.New("roster: no such user")
)

// Handle is the session-side object the roster holds a reference to. It is
// satisfied by *session.Session; kept as an interface here so roster has no
// import-cycle dependency on the session package.
type Handle interface {
	// Deliver enqueues msg for asynchronous delivery to this session.
	// Implementations must not block the caller.
	Deliver(msg protocol.Message) error
	// Close tears the session down, recording reason.
	Close(reason string) error
}

type entry struct {
	username string
	handle   Handle
	joinedAt time.Time
	status   string
}

type ghost struct {
	status    string
	expiresAt time.Time
}

// Roster tracks connected sessions by username.
type Roster struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	order    []string // insertion order, for stable ListResp output
	bans     map[string]string
	ghosts   map[string]ghost
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{
		sessions: make(map[string]*entry),
		bans:     make(map[string]string),
		ghosts:   make(map[string]ghost),
	}
}

// Join admits handle under the requested username, or a collision-resolved
// variant of it, and returns the name actually assigned. It fails with
// ErrBanned if the requested name is banned, or ErrNameUnavailable if no
// free variant could be found within maxCollisionAttempts.
func (r *Roster) Join(requested string, handle Handle) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reason, banned := r.bans[requested]; banned {
		return "", fmt.Errorf("%w: %s", ErrBanned, reason)
	}

	name := requested
	if _, taken := r.sessions[name]; taken {
		name = ""
		for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
			candidate := fmt.Sprintf("%s%04d", requested, rand.Intn(10000))
			if _, taken := r.sessions[candidate]; !taken {
				name = candidate
				break
			}
		}
		if name == "" {
			return "", ErrNameUnavailable
		}
	}

	e := &entry{username: name, handle: handle, joinedAt: time.Now()}
	if g, ok := r.ghosts[name]; ok && time.Now().Before(g.expiresAt) {
		e.status = g.status
		delete(r.ghosts, name)
	}
	r.sessions[name] = e
	r.order = append(r.order, name)
	return name, nil
}

// Drop removes username from the roster. If the departure was a plain
// disconnect (not a quit/kick/ban), the caller should pass carryStatus=true
// so the status text survives in a short-lived ghost slot for reconnects.
func (r *Roster) Drop(username string, carryStatus bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		return
	}
	if carryStatus && e.status != "" {
		r.ghosts[username] = ghost{status: e.status, expiresAt: time.Now().Add(ghostTTL)}
	}
	delete(r.sessions, username)
	r.removeFromOrder(username)
}

func (r *Roster) removeFromOrder(username string) {
	for i, n := range r.order {
		if n == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Get returns the handle registered under username.
func (r *Roster) Get(username string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Rename moves a session from oldName to newName, subject to the same
// collision/ban rules as Join. On success it returns the name actually
// assigned (which may differ from newName on collision).
func (r *Roster) Rename(oldName, newName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[oldName]
	if !ok {
		return "", ErrNoSuchUser
	}
	if reason, banned := r.bans[newName]; banned {
		return "", fmt.Errorf("%w: %s", ErrBanned, reason)
	}

	name := newName
	if _, taken := r.sessions[name]; taken && name != oldName {
		name = ""
		for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
			candidate := fmt.Sprintf("%s%04d", newName, rand.Intn(10000))
			if _, taken := r.sessions[candidate]; !taken {
				name = candidate
				break
			}
		}
		if name == "" {
			return "", ErrNameUnavailable
		}
	}

	delete(r.sessions, oldName)
	r.removeFromOrder(oldName)
	e.username = name
	r.sessions[name] = e
	r.order = append(r.order, name)
	return name, nil
}

// SetStatus updates the status text recorded against username.
func (r *Roster) SetStatus(username, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[username]
	if !ok {
		return ErrNoSuchUser
	}
	e.status = text
	return nil
}

// List returns connected usernames in stable (join) order.
func (r *Roster) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of connected sessions.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Kick removes username from the roster, notifies it of reason, and closes
// its session. The Leave broadcast that follows always carries the "kick"
// token regardless of reason's free text. It returns ErrNoSuchUser if the
// user is not connected.
func (r *Roster) Kick(username, reason string) error {
	r.mu.Lock()
	e, ok := r.sessions[username]
	if ok {
		delete(r.sessions, username)
		r.removeFromOrder(username)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNoSuchUser
	}
	_ = e.handle.Deliver(protocol.Kick(username, reason))
	return e.handle.Close("kick")
}

// Ban marks username as banned (future Joins under this exact name are
// refused) and, if currently connected, kicks it immediately. The Leave
// broadcast that follows always carries the "ban" token regardless of
// reason's free text.
func (r *Roster) Ban(username, reason string) error {
	r.mu.Lock()
	r.bans[username] = reason
	e, ok := r.sessions[username]
	if ok {
		delete(r.sessions, username)
		r.removeFromOrder(username)
	}
	r.mu.Unlock()
	if ok {
		_ = e.handle.Deliver(protocol.Kick(username, reason))
		return e.handle.Close("ban")
	}
	return nil
}

// Unban lifts a ban on username.
func (r *Roster) Unban(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bans, username)
}

// IsBanned reports whether username is currently banned, and the reason if
// so.
func (r *Roster) IsBanned(username string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reason, ok := r.bans[username]
	return ok, reason
}

// LoadBans seeds the ban list from persistent storage at startup.
func (r *Roster) LoadBans(bans map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reason := range bans {
		r.bans[name] = reason
	}
}
