// Package bus is the in-process event bus the monitor is assembled on.
// Services register under a unique name, create topics, and subscribe with
// handlers that run sequentially on the service's single consumer
// goroutine. All of one service's deliveries preserve publish order;
// nothing is ordered across services.
package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/iagocq/amicus/internal/log"
)

// Bus routes published events to per-service FIFO queues and tracks the
// background tasks services spawn, so shutdown can drain them.
type Bus struct {
	tracker *Tracker
	stats   *Stats

	mu       sync.RWMutex
	services map[string]Service
	topics   map[Topic]map[string]struct{}

	wg sync.WaitGroup
}

// New returns an empty bus. The log topic exists from the start so the
// earliest registered service can already subscribe to it.
func New() *Bus {
	b := &Bus{
		tracker:  NewTracker(),
		stats:    &Stats{},
		services: make(map[string]Service),
		topics:   make(map[Topic]map[string]struct{}),
	}
	b.topics[TopicLog] = make(map[string]struct{})
	return b
}

// Register adds svc under its name and creates the topic of the same name.
// A second service with the same name fails with ErrDuplicateTopic.
// Register is not safe for concurrent use; assembly happens before Start.
func (b *Bus) Register(svc Service) error {
	name := svc.Name()
	if err := b.CreateTopic(Named(name)); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	b.mu.Lock()
	b.services[name] = svc
	b.mu.Unlock()
	svc.core().bus = b

	if init, ok := svc.(Initializer); ok {
		if err := init.Init(); err != nil {
			return fmt.Errorf("init %q: %w", name, err)
		}
	}
	log.Debug(log.CatBus, "service registered", "service", name)
	return nil
}

// Start launches svc's Run as a tracked task. Run is expected to return
// once ctx is cancelled; its error, if any, is logged rather than
// propagated.
func (b *Bus) Start(ctx context.Context, svc Service) {
	name := svc.Name()
	task := b.tracker.Go(name+".run", func() {
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorErr(log.CatBus, "service task failed", err, "service", name)
		}
	})
	b.tracker.Track(task)
}

// CreateTopic registers topic. Creating an existing topic is a hard error.
func (b *Bus) CreateTopic(topic Topic) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.topics[topic]; exists {
		return fmt.Errorf("create %s: %w", topic, ErrDuplicateTopic)
	}
	b.topics[topic] = make(map[string]struct{})
	return nil
}

// Publish enqueues e for every current subscriber of topic, in the
// caller's goroutine, so each subscriber sees publish order. The returned
// awaiter completes once every queue has accepted the event; it says
// nothing about handler completion.
func (b *Bus) Publish(topic Topic, e Event) (*Awaiter, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names, exists := b.topics[topic]
	if !exists {
		return nil, fmt.Errorf("publish to %s: %w", topic, ErrUnknownTopic)
	}
	b.stats.published.Add(1)

	tasks := make([]*Task, 0, len(names))
	for name := range names {
		svc, ok := b.services[name]
		if !ok {
			b.stats.dropped.Add(1)
			continue
		}
		if err := svc.core().OnPublish(topic, e); err != nil {
			// The consumer exited between the topic snapshot and here.
			b.stats.dropped.Add(1)
			log.Warn(log.CatBus, "delivery skipped", "topic", topic.String(), "service", name)
			continue
		}
		b.stats.delivered.Add(1)
		tasks = append(tasks, completedTask(name))
	}
	return b.tracker.Track(tasks...), nil
}

// CloseTopic broadcasts the shutdown sentinel to topic's subscribers and
// removes the topic. Each subscriber drops its subscription when it
// dequeues the sentinel; events already queued before it are still
// handled. A consumer loop whose last subscription ends this way exits.
func (b *Bus) CloseTopic(topic Topic) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	names, exists := b.topics[topic]
	if !exists {
		return fmt.Errorf("close %s: %w", topic, ErrUnknownTopic)
	}
	for name := range names {
		if svc, ok := b.services[name]; ok {
			if err := svc.core().OnPublish(topic, quitEvent{}); err != nil {
				log.Warn(log.CatBus, "quit delivery skipped", "topic", topic.String(), "service", name)
			}
		}
	}
	delete(b.topics, topic)
	return nil
}

// addSubscriber records that the named service consumes topic.
func (b *Bus) addSubscriber(topic Topic, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.services[name]; !ok {
		return fmt.Errorf("subscribe to %s: %q: %w", topic, name, ErrUnknownService)
	}
	names, exists := b.topics[topic]
	if !exists {
		return fmt.Errorf("subscribe to %s: %w", topic, ErrUnknownTopic)
	}
	if _, dup := names[name]; dup {
		return fmt.Errorf("subscribe to %s: %q: %w", topic, name, ErrDuplicateSubscription)
	}
	names[name] = struct{}{}
	return nil
}

// removeSubscriber forgets the named service's subscription, if the topic
// still exists. The panic exit path calls it; after CloseTopic the entry
// is already gone.
func (b *Bus) removeSubscriber(topic Topic, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if names, exists := b.topics[topic]; exists {
		delete(names, name)
	}
}

// startConsumer runs the service's consumer loop: dequeue, dispatch to the
// handler subscribed to the item's topic, repeat. A sentinel drops one
// subscription; the loop exits when none remain or a handler panics.
func (b *Bus) startConsumer(c *Core) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			item := c.queue.pop()
			if _, quit := item.event.(quitEvent); quit {
				c.mu.Lock()
				delete(c.subs, item.topic)
				empty := len(c.subs) == 0
				if empty {
					c.running = false
				}
				c.mu.Unlock()
				if empty {
					return
				}
				continue
			}
			c.mu.Lock()
			h, ok := c.subs[item.topic]
			c.mu.Unlock()
			if !ok {
				// Queued before the subscription ended.
				b.stats.dropped.Add(1)
				continue
			}
			if !b.invoke(c, item.topic, h, item.event) {
				b.terminate(c)
				return
			}
		}
	}()
}

// terminate tears a service out of delivery after a handler panic: every
// subscription is dropped so nothing more reaches its dead consumer.
func (b *Bus) terminate(c *Core) {
	c.mu.Lock()
	topics := make([]Topic, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	c.subs = make(map[Topic]Handler)
	c.running = false
	c.mu.Unlock()
	for _, t := range topics {
		b.removeSubscriber(t, c.name)
	}
}

// invoke dispatches one event. A handler panic terminates the owning
// service's consumer loop instead of the process.
func (b *Bus) invoke(c *Core, topic Topic, h Handler, e Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			log.Error(log.CatBus, "handler panicked, consumer terminated",
				"service", c.name, "topic", topic.String(),
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	h(e)
	b.stats.handled.Add(1)
	return true
}

// Stats returns a snapshot of the delivery counters.
func (b *Bus) Stats() StatsSnapshot {
	return b.stats.Snapshot()
}

// Shutdown drains tracked tasks, closes every remaining topic, and waits
// for the consumer loops to exit. The context bounds the whole sequence.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.tracker.Quit()
	if err := b.tracker.Drain(ctx); err != nil {
		return fmt.Errorf("drain tasks: %w", err)
	}

	b.mu.Lock()
	topics := make([]Topic, 0, len(b.topics))
	for t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.Unlock()
	for _, t := range topics {
		if err := b.CloseTopic(t); err != nil && !errors.Is(err, ErrUnknownTopic) {
			log.ErrorErr(log.CatBus, "close topic failed", err, "topic", t.String())
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumers still running: %w", ctx.Err())
	}
}
