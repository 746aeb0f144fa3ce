// Package listener accepts TCP (optionally TLS) connections and hands each
// one to a new Session, enforcing the server's connection cap.
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"chatserver/internal/broadcast"
	"chatserver/internal/filetransfer"
	"chatserver/internal/protocol"
	"chatserver/internal/roster"
	"chatserver/internal/session"
)

// Listener accepts connections and admits them into sessions, subject to
// MaxClients.
type Listener struct {
	addr       string
	tlsConfig  *tls.Config
	maxClients int64
	rateLimit  int

	roster *roster.Roster
	bus    *broadcast.Bus
	ft     *filetransfer.Coordinator
	log    *slog.Logger

	connected atomic.Int64
}

// New returns a Listener. tlsConfig may be nil for a plain TCP listener.
// rateLimit of 0 uses ratelimit.DefaultCapacity per session.
func New(addr string, tlsConfig *tls.Config, maxClients int64, rateLimit int, r *roster.Roster, bus *broadcast.Bus, ft *filetransfer.Coordinator, log *slog.Logger) *Listener {
	return &Listener{
		addr:       addr,
		tlsConfig:  tlsConfig,
		maxClients: maxClients,
		rateLimit:  rateLimit,
		roster:     r,
		bus:        bus,
		ft:         ft,
		log:        log,
	}
}

// Run listens on l.addr and serves connections until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	var ln net.Listener
	var err error
	if l.tlsConfig != nil {
		ln, err = tls.Listen("tcp", l.addr, l.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", l.addr)
	}
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	l.log.Info("listening", "addr", l.addr, "tls", l.tlsConfig != nil)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			l.log.Warn("accept failed", "err", err)
			continue
		}
		go l.serve(ctx, conn)
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	if l.connected.Add(1) > l.maxClients {
		l.connected.Add(-1)
		_ = protocol.WriteMessage(conn, protocol.Error(protocol.ErrCapacityExceeded, "server is full"))
		_ = conn.Close()
		return
	}
	defer l.connected.Add(-1)

	deps := session.Deps{
		Roster:       l.roster,
		Bus:          l.bus,
		FileTransfer: l.ft,
		Logger:       l.log,
		RateLimitCap: l.rateLimit,
	}
	sess := session.New(conn, deps)
	sess.Run(ctx)
}

// ConnectedCount returns the number of connections currently admitted.
func (l *Listener) ConnectedCount() int64 {
	return l.connected.Load()
}
