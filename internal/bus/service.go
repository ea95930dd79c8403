package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iagocq/amicus/internal/log"
)

// Event is the payload delivered to subscription handlers. Concrete event
// types are defined by the publishing package.
type Event interface{}

// quitEvent is the reserved sentinel. Dequeuing it ends the subscription
// it was addressed to without invoking the handler.
type quitEvent struct{}

// Handler consumes events delivered to one subscription.
type Handler func(Event)

// Service is the unit that owns subscriptions, publishes, and at most one
// long-running task. Implementations embed *Core, which supplies
// everything except Run; services without a background task inherit
// Core's no-op Run.
type Service interface {
	// Name is the service's unique identity. Registering a service also
	// creates a topic with this name.
	Name() string
	// OnPublish enqueues an event for this service's subscription to topic.
	// The bus calls it for each subscriber on publish.
	OnPublish(topic Topic, e Event) error
	// Run is the service's background task, started with Bus.Start and
	// expected to return when ctx is cancelled.
	Run(ctx context.Context) error

	core() *Core
}

// Initializer is implemented by services that declare topics and
// subscriptions at registration time. The bus calls Init after the
// service is attached, so subscribing to the service's own name topic
// works.
type Initializer interface {
	Init() error
}

// Core supplies the bookkeeping every service embeds: the subscription
// table, the service's delivery queue, and the back-reference to the bus.
// The bus owns services; the back-reference exists only so a service can
// call back in (publish, subscribe, topic lifecycle), never to manage the
// bus.
//
// All of a service's subscriptions share one queue and one consumer
// goroutine, so its handlers run strictly in publish order, across topics
// as well as within one. That mirrors how a single-threaded event loop
// would interleave them and is what makes lifecycle sequences like
// done-then-leave land in order at the registry.
type Core struct {
	name string
	bus  *Bus

	mu      sync.Mutex
	subs    map[Topic]Handler
	queue   *eventQueue
	running bool
}

// NewCore returns a service core with the given unique name.
func NewCore(name string) *Core {
	return &Core{
		name:  name,
		subs:  make(map[Topic]Handler),
		queue: newEventQueue(),
	}
}

// Name returns the service name.
func (c *Core) Name() string { return c.name }

func (c *Core) core() *Core { return c }

// Run is the default background task: none.
func (c *Core) Run(context.Context) error { return nil }

// OnPublish enqueues e on this service's queue for topic.
func (c *Core) OnPublish(topic Topic, e Event) error {
	c.mu.Lock()
	_, ok := c.subs[topic]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("service %q has no subscription to %s", c.name, topic)
	}
	c.queue.push(queueItem{topic: topic, event: e})
	return nil
}

// Subscribe registers this service's subscription to topic. The handler
// runs on the service's consumer goroutine, in arrival order, until the
// topic is closed.
func (c *Core) Subscribe(topic Topic, h Handler) error {
	if c.bus == nil {
		return fmt.Errorf("subscribe to %s: service %q: %w", topic, c.name, ErrUnknownService)
	}

	c.mu.Lock()
	if _, exists := c.subs[topic]; exists {
		c.mu.Unlock()
		return fmt.Errorf("service %q to %s: %w", c.name, topic, ErrDuplicateSubscription)
	}
	c.subs[topic] = h
	c.mu.Unlock()

	if err := c.bus.addSubscriber(topic, c.name); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return err
	}

	c.ensureConsumer()
	return nil
}

// ensureConsumer starts the service's consumer goroutine if it is not
// already running.
func (c *Core) ensureConsumer() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()
	c.bus.startConsumer(c)
}

// Publish sends e to every current subscriber of topic. The returned
// awaiter signals once all deliveries have been accepted; handler
// completion is observable through the tracker, not here.
func (c *Core) Publish(topic Topic, e Event) (*Awaiter, error) {
	if c.bus == nil {
		return nil, fmt.Errorf("publish to %s: service %q: %w", topic, c.name, ErrUnknownService)
	}
	return c.bus.Publish(topic, e)
}

// CreateTopic registers a new topic on the bus.
func (c *Core) CreateTopic(topic Topic) error {
	if c.bus == nil {
		return fmt.Errorf("create %s: service %q: %w", topic, c.name, ErrUnknownService)
	}
	return c.bus.CreateTopic(topic)
}

// CloseTopic broadcasts the shutdown sentinel on topic and removes it.
func (c *Core) CloseTopic(topic Topic) error {
	if c.bus == nil {
		return fmt.Errorf("close %s: service %q: %w", topic, c.name, ErrUnknownService)
	}
	return c.bus.CloseTopic(topic)
}

// Go spawns fn as a tracked task: the shutdown drain waits for it.
// Valid only after the service has been registered.
func (c *Core) Go(name string, fn func()) *Task {
	task := c.bus.tracker.Go(name, fn)
	c.bus.tracker.Track(task)
	return task
}

// Log publishes a LogEvent to the bus log topic and mirrors it into the
// ambient debug logger under this service's name.
func (c *Core) Log(level log.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.At(level, log.Category(c.name), msg)
	if c.bus == nil {
		return
	}
	ev := LogEvent{Level: level, Service: c.name, Message: msg, Time: time.Now()}
	if _, err := c.bus.Publish(TopicLog, ev); err != nil {
		log.ErrorErr(log.CatBus, "log publish failed", err, "service", c.name)
	}
}
