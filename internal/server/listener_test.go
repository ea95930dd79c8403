package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/netutil"
	"github.com/iagocq/amicus/internal/server"
)

func startListener(t *testing.T, filter netutil.CIDRFilter) (*server.Listener, *capture) {
	t.Helper()
	b := bus.New()
	l := server.NewListener("127.0.0.1:0", filter)
	require.NoError(t, b.Register(l))
	tap := newCapture(server.TopicListener)
	require.NoError(t, b.Register(tap))

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx, l)
	t.Cleanup(func() {
		cancel()
		shutdown(t, b)
	})
	return l, tap
}

func TestListenerPublishesAcceptedConnections(t *testing.T) {
	l, tap := startListener(t, netutil.CIDRFilter{})
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)

	ev, ok := tap.snapshot()[0].(server.ConnEvent)
	require.True(t, ok)
	require.NotNil(t, ev.Conn)
	require.NoError(t, ev.Conn.Close())
}

func TestListenerRejectsOutsideIPBlock(t *testing.T) {
	filter, err := netutil.ParseCIDRFilter("10.0.0.0/8")
	require.NoError(t, err)
	l, tap := startListener(t, filter)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	// The loopback peer is outside the block, so the listener hangs up.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	require.Zero(t, tap.count())
}

func TestListenerAllowsInsideIPBlock(t *testing.T) {
	filter, err := netutil.ParseCIDRFilter("127.0.0.0/8")
	require.NoError(t, err)
	l, tap := startListener(t, filter)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return tap.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	ev := tap.snapshot()[0].(server.ConnEvent)
	require.NoError(t, ev.Conn.Close())
}

func TestListenerBadAddressFailsRun(t *testing.T) {
	l := server.NewListener("256.256.256.256:0", netutil.CIDRFilter{})
	require.Error(t, l.Run(context.Background()))
}
