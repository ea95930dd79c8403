package bus

import (
	"context"
	"sync"

	"github.com/iagocq/amicus/internal/log"
)

// Task is one tracked unit of asynchronous work. Its Done channel closes
// when the work finishes; a recovered panic counts as finishing.
type Task struct {
	name string
	done chan struct{}
}

// Done closes when the task has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Awaiter signals once a set of tasks has finished. Completion removes the
// awaiter from the tracker's outstanding set strictly before the Done
// channel closes, so a drain that observed the signal never re-finds it.
type Awaiter struct {
	done chan struct{}
}

// Done closes once every tracked task has completed.
func (a *Awaiter) Done() <-chan struct{} { return a.done }

// Wait blocks until the awaiter signals or ctx expires.
func (a *Awaiter) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tracker records every outstanding unit of asynchronous work (topic
// deliveries, session readers, service run loops) so shutdown can drain
// all of it, including work spawned while the drain is running.
type Tracker struct {
	mu       sync.Mutex
	waiters  map[uint64]*Awaiter
	nextID   uint64
	quit     chan struct{}
	quitOnce sync.Once
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		waiters: make(map[uint64]*Awaiter),
		quit:    make(chan struct{}),
	}
}

// Go spawns fn on a panic-recovered goroutine and returns its task. The
// task is not yet tracked; pass it to Track (or use Core.Go, which does).
func (t *Tracker) Go(name string, fn func()) *Task {
	task := &Task{name: name, done: make(chan struct{})}
	log.SafeGo(log.CatBus, name, func() {
		defer close(task.done)
		fn()
	})
	return task
}

// completedTask returns an already-finished task. Publish uses it for
// deliveries performed inline on the publisher's goroutine.
func completedTask(name string) *Task {
	task := &Task{name: name, done: make(chan struct{})}
	close(task.done)
	return task
}

// Track registers an awaiter over tasks. Once all of them complete, the
// awaiter removes itself from the outstanding set and then signals. An
// empty task set completes immediately.
func (t *Tracker) Track(tasks ...*Task) *Awaiter {
	a := &Awaiter{done: make(chan struct{})}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.waiters[id] = a
	t.mu.Unlock()

	log.SafeGo(log.CatBus, "awaiter", func() {
		for _, task := range tasks {
			<-task.Done()
		}
		t.mu.Lock()
		delete(t.waiters, id)
		t.mu.Unlock()
		close(a.done)
	})
	return a
}

// Quit raises the process-wide quit flag. Idempotent.
func (t *Tracker) Quit() {
	t.quitOnce.Do(func() { close(t.quit) })
}

// Quitting closes once Quit has been called.
func (t *Tracker) Quitting() <-chan struct{} { return t.quit }

// Outstanding returns the number of unfinished awaiters.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

// Drain raises the quit flag, then repeatedly takes one outstanding
// awaiter and blocks on it until none remain. The set is re-checked each
// iteration, so work spawned during the drain (a delivery triggering a new
// publish) is awaited too. Returns ctx.Err() if ctx expires first.
func (t *Tracker) Drain(ctx context.Context) error {
	t.Quit()
	for {
		t.mu.Lock()
		var next *Awaiter
		for _, a := range t.waiters {
			next = a
			break
		}
		t.mu.Unlock()

		if next == nil {
			return nil
		}
		if err := next.Wait(ctx); err != nil {
			return err
		}
	}
}
