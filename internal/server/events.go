package server

import (
	"net"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/protocol"
)

// Topics the connection layer publishes on. The session handler creates
// the client-* topics at registration; per-session topics are created on
// join and closed after leave.
var (
	TopicListener       = bus.Named("listener")
	TopicClientJoin     = bus.Named("client-join")
	TopicClientLeave    = bus.Named("client-leave")
	TopicClientDone     = bus.Named("client-done")
	TopicClientProgress = bus.Named("client-progress")
	TopicClientAlert    = bus.Named("client-alert")
	TopicClientActivity = bus.Named("client-activity")
	TopicClientKick     = bus.Named("client-kick")
)

// ConnEvent hands an accepted connection from the listener to the session
// handler.
type ConnEvent struct {
	Conn net.Conn
}

// JoinEvent announces a new session. Name is the session's topic prefix,
// which doubles as the worker's initial display name.
type JoinEvent struct {
	ID   int
	Name string
}

// LeaveEvent announces the end of a session, clean or not.
type LeaveEvent struct {
	ID int
}

// DoneEvent reports that the worker finished its job successfully.
type DoneEvent struct {
	ID int
}

// ProgressEvent reports a progress update.
type ProgressEvent struct {
	ID       int
	Progress protocol.Progress
}

// AlertEvent reports an operator-facing message from the worker.
type AlertEvent struct {
	ID      int
	Message string
}

// ActivityEvent marks a session as alive: any line it sends counts,
// keepalives and malformed ones included.
type ActivityEvent struct {
	ID int
}

// KickEvent asks the session handler to drop an idle session.
type KickEvent struct {
	ID int
}
