package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/netutil"
)

// Listener accepts worker connections and hands each one to the session
// handler over its name topic. Connections from outside the configured
// IP block are closed immediately.
type Listener struct {
	*bus.Core
	addr   string
	filter netutil.CIDRFilter

	mu sync.Mutex
	ln net.Listener
}

// NewListener returns the listener service, named "listener". addr is a
// host:port for net.Listen.
func NewListener(addr string, filter netutil.CIDRFilter) *Listener {
	return &Listener{Core: bus.NewCore("listener"), addr: addr, filter: filter}
}

// Addr returns the bound address, or nil before Run has bound one. With a
// ":0" listen address this is where the ephemeral port shows up.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run binds the listen address and accepts until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	l.Log(log.LevelInfo, "listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		remote := conn.RemoteAddr()
		if !l.filter.Allows(remote) {
			l.Log(log.LevelWarn, "rejected %s: outside ip block %s", remote, l.filter)
			_ = conn.Close()
			continue
		}

		l.Log(log.LevelDebug, "accepted %s", remote)
		if _, err := l.Publish(TopicListener, ConnEvent{Conn: conn}); err != nil {
			l.Log(log.LevelWarn, "connection dropped, no listener topic: %v", err)
			_ = conn.Close()
		}
	}
}
