package bus

import "sync"

// queueItem is one delivery: the topic it was published on and the event.
type queueItem struct {
	topic Topic
	event Event
}

// eventQueue is the unbounded FIFO behind one service's consumer loop.
// Pushes never block, so a slow handler backs up its own service without
// stalling publishers or other services.
type eventQueue struct {
	mu    sync.Mutex
	items []queueItem
	wake  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(it queueItem) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available and returns it in arrival order.
func (q *eventQueue) pop() queueItem {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = queueItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return it
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
