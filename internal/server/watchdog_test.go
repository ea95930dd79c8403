package server_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/server"
)

// lifecycleSink owns the client-* topics the watchdog consumes, stands in
// for the session handler, and records every kick.
type lifecycleSink struct {
	*bus.Core
	mu    sync.Mutex
	kicks []int
}

func newLifecycleSink() *lifecycleSink {
	return &lifecycleSink{Core: bus.NewCore("sink")}
}

func (s *lifecycleSink) Init() error {
	for _, topic := range []bus.Topic{
		server.TopicClientJoin,
		server.TopicClientLeave,
		server.TopicClientActivity,
		server.TopicClientKick,
	} {
		if err := s.CreateTopic(topic); err != nil {
			return err
		}
	}
	return s.Subscribe(server.TopicClientKick, s.onKick)
}

func (s *lifecycleSink) onKick(e bus.Event) {
	if ev, ok := e.(server.KickEvent); ok {
		s.mu.Lock()
		s.kicks = append(s.kicks, ev.ID)
		s.mu.Unlock()
	}
}

func (s *lifecycleSink) kicked() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.kicks...)
}

func startWatchdog(t *testing.T, timeout, sweep time.Duration) (*bus.Bus, *server.Watchdog, *lifecycleSink) {
	t.Helper()
	b := bus.New()
	sink := newLifecycleSink()
	w := server.NewWatchdog(timeout, sweep)
	require.NoError(t, b.Register(sink))
	require.NoError(t, b.Register(w))
	t.Cleanup(func() { shutdown(t, b) })
	return b, w, sink
}

func TestWatchdogKicksIdleSession(t *testing.T) {
	b, _, sink := startWatchdog(t, 50*time.Millisecond, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 7, Name: "handler/7"})
	require.Eventually(t, func() bool {
		kicks := sink.kicked()
		return len(kicks) == 1 && kicks[0] == 7
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWatchdogActivityDefersKick(t *testing.T) {
	b, _, sink := startWatchdog(t, 300*time.Millisecond, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 1, Name: "handler/1"})
	for i := 0; i < 6; i++ {
		time.Sleep(30 * time.Millisecond)
		emit(t, b, server.TopicClientActivity, server.ActivityEvent{ID: 1})
	}
	require.Empty(t, sink.kicked())

	// Silence finally runs the clock out.
	require.Eventually(t, func() bool { return len(sink.kicked()) == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestWatchdogCleanLeaveIsNotKicked(t *testing.T) {
	b, w, sink := startWatchdog(t, 60*time.Millisecond, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 1, Name: "handler/1"})
	emit(t, b, server.TopicClientLeave, server.LeaveEvent{ID: 1})

	require.Never(t, func() bool { return len(sink.kicked()) > 0 },
		300*time.Millisecond, 20*time.Millisecond)
	require.Zero(t, w.Tracked())
}

func TestWatchdogZeroTimeoutDisablesTracking(t *testing.T) {
	b, w, sink := startWatchdog(t, 0, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 1, Name: "handler/1"})
	emit(t, b, server.TopicClientActivity, server.ActivityEvent{ID: 1})

	require.Never(t, func() bool { return len(sink.kicked()) > 0 },
		200*time.Millisecond, 20*time.Millisecond)
	require.Zero(t, w.Tracked())
}

func TestWatchdogSetTimeoutZeroDropsArmedEntries(t *testing.T) {
	b, w, sink := startWatchdog(t, 60*time.Millisecond, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 1, Name: "handler/1"})
	require.Eventually(t, func() bool { return w.Tracked() == 1 },
		2*time.Second, 5*time.Millisecond)

	w.SetTimeout(0)
	require.Never(t, func() bool { return len(sink.kicked()) > 0 },
		300*time.Millisecond, 20*time.Millisecond)
	require.Zero(t, w.Tracked())
}

func TestWatchdogReEnableTracksOnNextActivity(t *testing.T) {
	b, w, sink := startWatchdog(t, 0, 10*time.Millisecond)

	emit(t, b, server.TopicClientJoin, server.JoinEvent{ID: 3, Name: "handler/3"})
	w.SetTimeout(50 * time.Millisecond)
	emit(t, b, server.TopicClientActivity, server.ActivityEvent{ID: 3})

	require.Eventually(t, func() bool {
		kicks := sink.kicked()
		return len(kicks) == 1 && kicks[0] == 3
	}, 2*time.Second, 5*time.Millisecond)
}
