package roster

import "chatserver/internal/protocol"

// RouteDM delivers a direct message from `from` to `to` if `to` is
// connected, and returns whether delivery happened so the caller can send
// the sender a DMAck. A missing recipient yields ErrNoSuchUser, which the
// caller reports to the sender as a NoSuchUser error.
func (r *Roster) RouteDM(from, to, body string) (delivered bool, err error) {
	handle, ok := r.Get(to)
	if !ok {
		return false, ErrNoSuchUser
	}
	if err := handle.Deliver(protocol.DM(from, to, body)); err != nil {
		return false, err
	}
	return true, nil
}
