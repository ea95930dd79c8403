package bus

import "fmt"

// SessionPrefix is the name prefix for per-session topic families. It is
// also the session handler service's registered name.
const SessionPrefix = "handler"

// Channel enumerates the per-session sub-channels.
type Channel uint8

const (
	// ChannelProgress carries parsed progress values for one session.
	ChannelProgress Channel = iota + 1
	// ChannelAlert carries alert message text for one session.
	ChannelAlert
	// ChannelRecv carries raw received lines for one session.
	ChannelRecv
	// ChannelSend carries raw bytes to write to one session's socket.
	ChannelSend
	// ChannelKeepalive carries liveness markers for one session.
	ChannelKeepalive
)

func (c Channel) String() string {
	switch c {
	case ChannelProgress:
		return "progress"
	case ChannelAlert:
		return "alert"
	case ChannelRecv:
		return "recv"
	case ChannelSend:
		return "send"
	case ChannelKeepalive:
		return "keepalive"
	default:
		return "unknown"
	}
}

// Topic identifies one broadcast channel on the bus. It is a comparable
// value usable as a map key. Named topics identify fixed channels
// ("client-join", "log"); session topics are keyed by session id plus a
// sub-channel, so call sites never assemble topic names from strings.
type Topic struct {
	name    string
	session int
	channel Channel
}

// Named returns the topic for a fixed channel name.
func Named(name string) Topic {
	return Topic{name: name, session: -1}
}

// ForSession returns the topic for one session's sub-channel.
func ForSession(id int, c Channel) Topic {
	return Topic{session: id, channel: c}
}

// Session reports the session id when the topic is session-scoped.
func (t Topic) Session() (int, bool) {
	if t.channel == 0 {
		return 0, false
	}
	return t.session, true
}

func (t Topic) String() string {
	if t.channel != 0 {
		return fmt.Sprintf("%s/%d/%s", SessionPrefix, t.session, t.channel)
	}
	return t.name
}

// SessionName returns the display name assigned to a session at join time,
// e.g. "handler/3". It doubles as a worker's initial dashboard name.
func SessionName(id int) string {
	return fmt.Sprintf("%s/%d", SessionPrefix, id)
}

// TopicLog is the bus-wide log channel, created by New. Services publish
// LogEvent values to it via Core.Log; the dashboard's status line and the
// notification sink subscribe.
var TopicLog = Named("log")
