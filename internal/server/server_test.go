package server_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/monitor"
	"github.com/iagocq/amicus/internal/netutil"
	"github.com/iagocq/amicus/internal/server"
)

func TestMain(m *testing.M) {
	// go-cache janitors have no stop hook; the watchdog relies on the
	// finalizer go-cache installs for them.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

// capture subscribes to the given topics and appends everything delivered.
// As a single service it sees all of them in publish order.
type capture struct {
	*bus.Core
	topics []bus.Topic

	mu     sync.Mutex
	events []bus.Event
}

func newCapture(topics ...bus.Topic) *capture {
	return &capture{Core: bus.NewCore("capture"), topics: topics}
}

func (c *capture) Init() error {
	for _, topic := range c.topics {
		if err := c.Subscribe(topic, c.handle); err != nil {
			return err
		}
	}
	return nil
}

func (c *capture) handle(e bus.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capture) snapshot() []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.Event(nil), c.events...)
}

func shutdown(t *testing.T, b *bus.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
}

func emit(t *testing.T, b *bus.Bus, topic bus.Topic, e bus.Event) {
	t.Helper()
	_, err := b.Publish(topic, e)
	require.NoError(t, err)
}

func waitAddr(t *testing.T, l *server.Listener) net.Addr {
	t.Helper()
	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = l.Addr()
		return addr != nil
	}, 2*time.Second, 5*time.Millisecond)
	return addr
}

// startStack assembles listener, session handler, registry, and watchdog
// the way the server command does, on an ephemeral port.
func startStack(t *testing.T, idleTimeout time.Duration) (*server.Listener, *monitor.Registry) {
	t.Helper()
	b := bus.New()
	l := server.NewListener("127.0.0.1:0", netutil.CIDRFilter{})
	h := server.NewHandler(nil)
	reg := monitor.NewRegistry()
	w := server.NewWatchdog(idleTimeout, 10*time.Millisecond)

	services := []bus.Service{l, h, reg, w}
	for _, svc := range services {
		require.NoError(t, b.Register(svc))
	}
	ctx, cancel := context.WithCancel(context.Background())
	for _, svc := range services {
		b.Start(ctx, svc)
	}
	t.Cleanup(func() {
		cancel()
		shutdown(t, b)
	})
	return l, reg
}

func TestWorkerLifecycleEndToEnd(t *testing.T) {
	l, reg := startStack(t, 0)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = fmt.Fprintf(conn, "progress 1 4\nprogress 4 4\ndone\n")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		records := reg.Records()
		if len(records) != 1 {
			return false
		}
		rec := records[0]
		return rec.ID == -1 &&
			rec.Status == monitor.StatusSuccess &&
			rec.Name == "handler/0" &&
			rec.Progress.String() == "100.00%"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAbandonedWorkerEndsInError(t *testing.T) {
	l, reg := startStack(t, 0)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = fmt.Fprintf(conn, "progress 50\n")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		records := reg.Records()
		return len(records) == 1 &&
			records[0].ID == -1 &&
			records[0].Status == monitor.StatusError
	}, 2*time.Second, 5*time.Millisecond)
}

func TestIdleWorkerIsKickedEndToEnd(t *testing.T) {
	l, reg := startStack(t, 80*time.Millisecond)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "progress 50\n")
	require.NoError(t, err)

	// Silence past the idle timeout gets the socket closed server-side.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)

	require.Eventually(t, func() bool {
		records := reg.Records()
		return len(records) == 1 &&
			records[0].ID == -1 &&
			records[0].Status == monitor.StatusError
	}, 2*time.Second, 5*time.Millisecond)
}

func TestKeepalivesHoldAnIdleKickOff(t *testing.T) {
	l, reg := startStack(t, 500*time.Millisecond)
	addr := waitAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err = fmt.Fprintf(conn, "keepalive\n")
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
	}
	_, err = fmt.Fprintf(conn, "done\n")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		records := reg.Records()
		return len(records) == 1 && records[0].Status == monitor.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
}
