// Package screen bridges the bus and the terminal dashboard. Registry
// refreshes and log events are forwarded to the running Bubble Tea
// program as messages; rename requests travel the other way.
package screen

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/monitor"
)

// Sender receives dashboard messages. *tea.Program satisfies it.
type Sender interface {
	Send(tea.Msg)
}

// Bridge is the bus side of the dashboard. Events that arrive before
// Attach are dropped; the registry republishes on the next worker
// update, so the dashboard catches up on its own.
type Bridge struct {
	*bus.Core

	mu     sync.Mutex
	target Sender
}

// New returns the bridge service, named "screen".
func New() *Bridge {
	return &Bridge{Core: bus.NewCore("screen")}
}

// Init subscribes to registry refreshes and the log topic.
func (b *Bridge) Init() error {
	if err := b.Subscribe(monitor.TopicRefresh, b.onRefresh); err != nil {
		return err
	}
	return b.Subscribe(bus.TopicLog, b.onLog)
}

// Attach points the bridge at a running program.
func (b *Bridge) Attach(target Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
}

// Rename publishes a rename request for the worker in slot. The
// dashboard calls it from the UI goroutine.
func (b *Bridge) Rename(slot int, name string) {
	_, err := b.Publish(monitor.TopicRename, monitor.RenameEvent{Slot: slot, Name: name})
	if err != nil {
		log.Warn(log.CatUI, "rename publish failed", "slot", slot, "error", err.Error())
	}
}

func (b *Bridge) onRefresh(e bus.Event) {
	ev, ok := e.(monitor.RefreshEvent)
	if !ok {
		log.Warn(log.CatUI, "refresh event with unexpected payload", "type", fmt.Sprintf("%T", e))
		return
	}
	b.send(ev)
}

func (b *Bridge) onLog(e bus.Event) {
	ev, ok := e.(bus.LogEvent)
	if !ok {
		return
	}
	b.send(ev)
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	target := b.target
	b.mu.Unlock()
	if target == nil {
		return
	}
	target.Send(msg)
}
