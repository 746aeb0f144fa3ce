// Package admin implements the interactive operator console: a stdin
// read loop accepting /help, /list, /kick, /ban, /unban, and /quit.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"chatserver/internal/roster"
)

const helpText = `available commands:
  /help, /h              show this text
  /list                  list connected usernames
  /kick <user>           disconnect a user
  /ban <user> [reason]   disconnect and ban a user
  /unban <user>          lift a ban
  /quit, /q              shut the server down
`

// auditor is the subset of store.Store the console persists admin actions
// through. An interface here keeps admin free of a direct store
// dependency.
type auditor interface {
	InsertAuditLog(actor, action, target, reason string) error
	InsertBan(username, reason, bannedBy string) error
	DeleteBan(username string) error
}

// Console drives the admin read loop against a Roster.
type Console struct {
	roster *roster.Roster
	log    *slog.Logger
	in     *bufio.Reader
	out    io.Writer

	// Audit, if non-nil, persists kick/ban/unban actions.
	Audit auditor

	// Shutdown is invoked when the operator issues /quit. It must trigger
	// graceful server shutdown; Console does not itself know how to stop
	// the listener.
	Shutdown func()
}

// New returns a Console reading commands from in and writing responses to
// out.
func New(r *roster.Roster, log *slog.Logger, in io.Reader, out io.Writer) *Console {
	return &Console{roster: r, log: log, in: bufio.NewReader(in), out: out}
}

// Run reads commands until ctx is done or the input stream ends.
func (c *Console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.in.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handle(strings.TrimSpace(line))
		}
	}
}

func (c *Console) handle(line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help", "/h":
		fmt.Fprint(c.out, helpText)
	case "/list":
		users := c.roster.List()
		if len(users) == 0 {
			fmt.Fprintln(c.out, "no users connected")
			return
		}
		for _, u := range users {
			fmt.Fprintln(c.out, u)
		}
	case "/kick":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /kick <user>")
			return
		}
		target := fields[1]
		if err := c.roster.Kick(target, "kicked by admin"); err != nil {
			fmt.Fprintf(c.out, "kick %s: %v\n", target, err)
			return
		}
		c.audit("kick", target, "")
		c.log.Info("admin kicked user", "username", target)
		fmt.Fprintf(c.out, "kicked %s\n", target)
	case "/ban":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /ban <user> [reason]")
			return
		}
		target := fields[1]
		reason := "banned by admin"
		if len(fields) > 2 {
			reason = strings.Join(fields[2:], " ")
		}
		if err := c.roster.Ban(target, reason); err != nil {
			fmt.Fprintf(c.out, "ban %s: %v\n", target, err)
			return
		}
		c.audit("ban", target, reason)
		if c.Audit != nil {
			if err := c.Audit.InsertBan(target, reason, "admin"); err != nil {
				c.log.Warn("failed to persist ban", "username", target, "err", err)
			}
		}
		c.log.Info("admin banned user", "username", target, "reason", reason)
		fmt.Fprintf(c.out, "banned %s\n", target)
	case "/unban":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /unban <user>")
			return
		}
		target := fields[1]
		c.roster.Unban(target)
		c.audit("unban", target, "")
		if c.Audit != nil {
			if err := c.Audit.DeleteBan(target); err != nil {
				c.log.Warn("failed to un-persist ban", "username", target, "err", err)
			}
		}
		fmt.Fprintf(c.out, "unbanned %s\n", target)
	case "/quit", "/q":
		fmt.Fprintln(c.out, "shutting down")
		if c.Shutdown != nil {
			c.Shutdown()
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q — try /help\n", fields[0])
	}
}

func (c *Console) audit(action, target, reason string) {
	if c.Audit == nil {
		return
	}
	if err := c.Audit.InsertAuditLog("admin", action, target, reason); err != nil {
		c.log.Warn("failed to persist audit log", "action", action, "err", err)
	}
}
