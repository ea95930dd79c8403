package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/protocol"
	"github.com/iagocq/amicus/internal/server"
)

// startHandler wires a session handler plus a capture service watching the
// given topics. The listener topic exists but no listener runs; tests feed
// connections in by publishing ConnEvents themselves.
func startHandler(t *testing.T, topics ...bus.Topic) (*bus.Bus, *server.Handler, *capture) {
	t.Helper()
	b := bus.New()
	require.NoError(t, b.CreateTopic(server.TopicListener))
	h := server.NewHandler(nil)
	require.NoError(t, b.Register(h))
	tap := newCapture(topics...)
	require.NoError(t, b.Register(tap))

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx, h)
	t.Cleanup(func() {
		cancel()
		shutdown(t, b)
	})
	return b, h, tap
}

// connect hands one end of a pipe to the handler and returns the client
// end.
func connect(t *testing.T, b *bus.Bus) net.Conn {
	t.Helper()
	srv, cli := net.Pipe()
	emit(t, b, server.TopicListener, server.ConnEvent{Conn: srv})
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestSessionLifecycleEventOrder(t *testing.T) {
	b, _, tap := startHandler(t,
		server.TopicClientJoin,
		server.TopicClientProgress,
		server.TopicClientAlert,
		server.TopicClientDone,
		server.TopicClientLeave,
	)

	cli := connect(t, b)
	_, err := cli.Write([]byte("progress 3 10\nalert disk full\ndone\n"))
	require.NoError(t, err)
	require.NoError(t, cli.Close())

	require.Eventually(t, func() bool { return tap.count() >= 5 },
		2*time.Second, 5*time.Millisecond)

	want := []bus.Event{
		server.JoinEvent{ID: 0, Name: "handler/0"},
		server.ProgressEvent{ID: 0, Progress: protocol.RatioProgress(0.3)},
		server.AlertEvent{ID: 0, Message: "disk full"},
		server.DoneEvent{ID: 0},
		server.LeaveEvent{ID: 0},
	}
	require.Equal(t, want, tap.snapshot())
}

func TestDoneRightBeforeDisconnectStillCounts(t *testing.T) {
	b, _, tap := startHandler(t, server.TopicClientDone, server.TopicClientLeave)

	// The client slams the door right after done; the done must still be
	// handled before the leave.
	cli := connect(t, b)
	_, err := cli.Write([]byte("done\n"))
	require.NoError(t, err)
	require.NoError(t, cli.Close())

	require.Eventually(t, func() bool { return tap.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	want := []bus.Event{
		server.DoneEvent{ID: 0},
		server.LeaveEvent{ID: 0},
	}
	require.Equal(t, want, tap.snapshot())
}

func TestSessionIDsAreNeverReused(t *testing.T) {
	b, h, tap := startHandler(t, server.TopicClientJoin)

	first := connect(t, b)
	connect(t, b)
	require.Eventually(t, func() bool { return h.Sessions() == 2 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return h.Sessions() == 1 },
		2*time.Second, 5*time.Millisecond)

	connect(t, b)
	require.Eventually(t, func() bool { return tap.count() == 3 },
		2*time.Second, 5*time.Millisecond)

	var ids []int
	for _, e := range tap.snapshot() {
		join, ok := e.(server.JoinEvent)
		require.True(t, ok)
		ids = append(ids, join.ID)
	}
	require.Equal(t, []int{0, 1, 2}, ids)
}

func TestMalformedLinesKeepTheSessionAlive(t *testing.T) {
	b, h, tap := startHandler(t,
		server.TopicClientProgress,
		server.TopicClientActivity,
		server.TopicClientLeave,
	)

	cli := connect(t, b)
	_, err := cli.Write([]byte("\nbanana\nprogress 50\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, e := range tap.snapshot() {
			if p, ok := e.(server.ProgressEvent); ok {
				return p.Progress.String() == "50.00%"
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// All three lines counted as activity, none of them ended the session.
	activity := 0
	for _, e := range tap.snapshot() {
		switch e.(type) {
		case server.ActivityEvent:
			activity++
		case server.LeaveEvent:
			t.Fatal("session ended on a malformed line")
		}
	}
	require.Equal(t, 3, activity)
	require.Equal(t, 1, h.Sessions())
}

func TestKickClosesTheConnection(t *testing.T) {
	b, h, tap := startHandler(t, server.TopicClientJoin, server.TopicClientLeave)

	cli := connect(t, b)
	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	// A kick for a session that never existed is ignored.
	emit(t, b, server.TopicClientKick, server.KickEvent{ID: 99})

	emit(t, b, server.TopicClientKick, server.KickEvent{ID: 0})
	require.NoError(t, cli.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := cli.Read(make([]byte, 1))
	require.Error(t, err)

	require.Eventually(t, func() bool { return h.Sessions() == 0 },
		2*time.Second, 5*time.Millisecond)
	require.Contains(t, tap.snapshot(), bus.Event(server.LeaveEvent{ID: 0}))
}

func TestSendChannelWritesToTheSocket(t *testing.T) {
	b, _, tap := startHandler(t, server.TopicClientJoin)

	cli := connect(t, b)
	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	emit(t, b, bus.ForSession(0, bus.ChannelSend), []byte("pause\n"))

	require.NoError(t, cli.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, err := cli.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "pause\n", string(buf[:n]))
}

func TestKeepaliveCountsAsActivity(t *testing.T) {
	b, _, tap := startHandler(t, server.TopicClientActivity)

	cli := connect(t, b)
	_, err := cli.Write([]byte("keepalive\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, bus.Event(server.ActivityEvent{ID: 0}), tap.snapshot()[0])
}

func TestPartialFinalLineIsDiscarded(t *testing.T) {
	b, _, tap := startHandler(t,
		server.TopicClientDone,
		server.TopicClientLeave,
		server.TopicClientActivity,
	)

	cli := connect(t, b)
	_, err := cli.Write([]byte("done"))
	require.NoError(t, err)
	require.NoError(t, cli.Close())

	// Without the newline the done never happened.
	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, bus.Event(server.LeaveEvent{ID: 0}), tap.snapshot()[0])
}
