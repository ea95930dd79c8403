// Package monitor keeps the authoritative per-worker state the dashboard
// renders. It consumes the connection layer's client-* events and re-emits
// a full record snapshot on every change, so consumers never read shared
// state.
package monitor

import (
	"sync"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/protocol"
	"github.com/iagocq/amicus/internal/server"
)

// Status is a worker record's lifecycle state.
type Status int

const (
	// StatusRecording means the session is live and reporting.
	StatusRecording Status = iota
	// StatusSuccess means the worker sent done.
	StatusSuccess
	// StatusError means the session ended without done.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusRecording:
		return "recording"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Record is the dashboard state for one worker. ID is the live session id,
// -1 once the worker left; Slot is the display row, assigned at first join
// and never reassigned. A record whose ID is -1 may be claimed by the next
// join, which keeps Name and Slot and resets the rest.
type Record struct {
	ID        int
	Status    Status
	Name      string
	Progress  protocol.Progress
	Slot      int
	LastAlert string
}

// Topics owned by the registry.
var (
	// TopicRefresh carries a RefreshEvent after every record change.
	TopicRefresh = bus.Named("client-refresh")
	// TopicRename carries RenameEvent from the dashboard's inline editor.
	TopicRename = bus.Named("client-rename")
)

// RefreshEvent is a snapshot of one record, published after each change.
type RefreshEvent struct {
	Record Record
}

// RenameEvent renames the record at Slot.
type RenameEvent struct {
	Slot int
	Name string
}

// Registry tracks every worker that ever joined. All mutation happens on
// its consumer goroutine; Records serves read snapshots.
type Registry struct {
	*bus.Core

	mu      sync.RWMutex
	records []*Record
}

// NewRegistry returns the registry service, named "client".
func NewRegistry() *Registry {
	return &Registry{Core: bus.NewCore("client")}
}

// Init creates the registry's topics and wires its subscriptions.
func (r *Registry) Init() error {
	for _, topic := range []bus.Topic{TopicRefresh, TopicRename} {
		if err := r.CreateTopic(topic); err != nil {
			return err
		}
	}
	subs := []struct {
		topic   bus.Topic
		handler bus.Handler
	}{
		{TopicRename, r.onRename},
		{server.TopicClientJoin, r.onJoin},
		{server.TopicClientLeave, r.onLeave},
		{server.TopicClientDone, r.onDone},
		{server.TopicClientProgress, r.onProgress},
		{server.TopicClientAlert, r.onAlert},
	}
	for _, s := range subs {
		if err := r.Subscribe(s.topic, s.handler); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a snapshot of every record in slot order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	for i, rec := range r.records {
		out[i] = *rec
	}
	return out
}

// findLive returns the record with the given live id, or nil. Also used
// with -1 to find a reusable record. Caller holds mu.
func (r *Registry) findLive(id int) *Record {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (r *Registry) refresh(rec Record) {
	if _, err := r.Publish(TopicRefresh, RefreshEvent{Record: rec}); err != nil {
		r.Log(log.LevelWarn, "refresh publish failed: %v", err)
	}
}

func (r *Registry) onJoin(e bus.Event) {
	ev, ok := e.(server.JoinEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-join with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	rec := r.findLive(-1)
	if rec != nil {
		// Reconnect: claim the freed slot, keep its name.
		rec.ID = ev.ID
		rec.Status = StatusRecording
		rec.Progress = protocol.Progress{}
		rec.LastAlert = ""
	} else {
		rec = &Record{ID: ev.ID, Name: ev.Name, Slot: len(r.records)}
		r.records = append(r.records, rec)
	}
	snapshot := *rec
	r.mu.Unlock()

	r.Log(log.LevelDebug, "client-join %d %q slot %d", snapshot.ID, snapshot.Name, snapshot.Slot)
	r.refresh(snapshot)
}

func (r *Registry) onProgress(e bus.Event) {
	ev, ok := e.(server.ProgressEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-progress with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	rec := r.findLive(ev.ID)
	if rec == nil {
		r.mu.Unlock()
		r.Log(log.LevelWarn, "client %d progressed without joining", ev.ID)
		return
	}
	rec.Progress = ev.Progress
	snapshot := *rec
	r.mu.Unlock()

	r.refresh(snapshot)
}

func (r *Registry) onDone(e bus.Event) {
	ev, ok := e.(server.DoneEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-done with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	rec := r.findLive(ev.ID)
	if rec == nil {
		r.mu.Unlock()
		r.Log(log.LevelWarn, "client %d was done without joining", ev.ID)
		return
	}
	rec.Status = StatusSuccess
	snapshot := *rec
	r.mu.Unlock()

	r.refresh(snapshot)
}

func (r *Registry) onLeave(e bus.Event) {
	ev, ok := e.(server.LeaveEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-leave with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	rec := r.findLive(ev.ID)
	if rec == nil {
		r.mu.Unlock()
		r.Log(log.LevelWarn, "client %d left without joining", ev.ID)
		return
	}
	rec.ID = -1
	abandoned := rec.Status != StatusSuccess
	if abandoned {
		rec.Status = StatusError
	}
	snapshot := *rec
	r.mu.Unlock()

	if abandoned {
		r.Log(log.LevelWarn, "client %d (%s) left without being done", ev.ID, snapshot.Name)
	}
	r.refresh(snapshot)
}

func (r *Registry) onAlert(e bus.Event) {
	ev, ok := e.(server.AlertEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-alert with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	rec := r.findLive(ev.ID)
	if rec == nil {
		r.mu.Unlock()
		r.Log(log.LevelWarn, "client %d alerted without joining", ev.ID)
		return
	}
	rec.LastAlert = ev.Message
	snapshot := *rec
	r.mu.Unlock()

	r.Log(log.LevelWarn, "client %d (%s) alert: %s", ev.ID, snapshot.Name, ev.Message)
	r.refresh(snapshot)
}

func (r *Registry) onRename(e bus.Event) {
	ev, ok := e.(RenameEvent)
	if !ok {
		r.Log(log.LevelWarn, "client-rename with unexpected payload %T", e)
		return
	}

	r.mu.Lock()
	if ev.Slot < 0 || ev.Slot >= len(r.records) {
		r.mu.Unlock()
		r.Log(log.LevelWarn, "rename for unknown slot %d", ev.Slot)
		return
	}
	rec := r.records[ev.Slot]
	rec.Name = ev.Name
	snapshot := *rec
	r.mu.Unlock()

	r.refresh(snapshot)
}
