package server

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/cache"
	"github.com/iagocq/amicus/internal/log"
)

// Watchdog kicks sessions that stop talking. Every line a session sends,
// keepalives included, re-arms its TTL entry; when an entry expires
// without a clean leave the watchdog asks the session handler to drop the
// connection. A timeout of zero disables kicking, which is also the
// default.
type Watchdog struct {
	*bus.Core

	store   cache.Store[string, int]
	timeout atomic.Int64

	// gone marks sessions whose entry is being removed because they left
	// cleanly, so the eviction hook can tell a leave from an expiry.
	gone sync.Map
}

// NewWatchdog returns the watchdog service. sweep bounds how late after
// its deadline an idle session is noticed.
func NewWatchdog(timeout, sweep time.Duration) *Watchdog {
	w := &Watchdog{
		Core:  bus.NewCore("watchdog"),
		store: cache.NewMemory[string, int]("watchdog", timeout, sweep),
	}
	w.timeout.Store(int64(timeout))
	w.store.OnEvicted(w.onEvicted)
	return w
}

// Init subscribes to the session lifecycle topics.
func (w *Watchdog) Init() error {
	subs := []struct {
		topic bus.Topic
		h     bus.Handler
	}{
		{TopicClientJoin, w.onJoin},
		{TopicClientActivity, w.onActivity},
		{TopicClientLeave, w.onLeave},
	}
	for _, s := range subs {
		if err := w.Subscribe(s.topic, s.h); err != nil {
			return err
		}
	}
	return nil
}

// Timeout returns the current idle timeout; zero means kicking is off.
func (w *Watchdog) Timeout() time.Duration {
	return time.Duration(w.timeout.Load())
}

// SetTimeout changes the idle timeout. Setting zero stops tracking and
// drops the entries already armed; setting it back on picks sessions up
// again on their next activity.
func (w *Watchdog) SetTimeout(d time.Duration) {
	was := time.Duration(w.timeout.Swap(int64(d)))
	if d == was {
		return
	}
	if d == 0 {
		w.store.Flush()
		w.Log(log.LevelInfo, "idle kicking disabled")
		return
	}
	w.Log(log.LevelInfo, "idle timeout set to %s", d)
}

// Tracked returns the number of sessions currently under watch.
func (w *Watchdog) Tracked() int {
	return w.store.Len()
}

func (w *Watchdog) onJoin(e bus.Event) {
	ev, ok := e.(JoinEvent)
	if !ok {
		w.Log(log.LevelWarn, "join event with unexpected payload %T", e)
		return
	}
	timeout := w.Timeout()
	if timeout == 0 {
		return
	}
	w.store.Set(sessionKey(ev.ID), ev.ID, timeout)
}

func (w *Watchdog) onActivity(e bus.Event) {
	ev, ok := e.(ActivityEvent)
	if !ok {
		w.Log(log.LevelWarn, "activity event with unexpected payload %T", e)
		return
	}
	timeout := w.Timeout()
	if timeout == 0 {
		return
	}
	if !w.store.Touch(sessionKey(ev.ID), timeout) {
		// Joined while kicking was disabled, or expired a moment ago.
		w.store.Set(sessionKey(ev.ID), ev.ID, timeout)
	}
}

func (w *Watchdog) onLeave(e bus.Event) {
	ev, ok := e.(LeaveEvent)
	if !ok {
		w.Log(log.LevelWarn, "leave event with unexpected payload %T", e)
		return
	}
	if _, tracked := w.store.Get(sessionKey(ev.ID)); !tracked {
		return
	}
	w.gone.Store(ev.ID, struct{}{})
	w.store.Delete(sessionKey(ev.ID))
}

// onEvicted runs for every entry leaving the store. Entries removed on a
// clean leave carry a marker and are ignored; everything else is an idle
// session worth kicking.
func (w *Watchdog) onEvicted(_ string, id int) {
	if _, clean := w.gone.LoadAndDelete(id); clean {
		return
	}
	w.Log(log.LevelWarn, "client %d idle for over %s, kicking", id, w.Timeout())
	if _, err := w.Publish(TopicClientKick, KickEvent{ID: id}); err != nil {
		w.Log(log.LevelWarn, "kick publish for session %d failed: %v", id, err)
	}
}

func sessionKey(id int) string {
	return strconv.Itoa(id)
}
