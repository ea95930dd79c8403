package bus

import "sync/atomic"

// Stats counts bus activity. All counters are monotonic.
type Stats struct {
	published atomic.Int64
	delivered atomic.Int64
	handled   atomic.Int64
	dropped   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the bus counters.
type StatsSnapshot struct {
	// Published counts Publish calls that found their topic.
	Published int64
	// Delivered counts per-subscription enqueues.
	Delivered int64
	// Handled counts handler invocations that returned without panicking.
	Handled int64
	// Dropped counts deliveries skipped because the subscription was gone.
	Dropped int64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Published: s.published.Load(),
		Delivered: s.delivered.Load(),
		Handled:   s.handled.Load(),
		Dropped:   s.dropped.Load(),
	}
}
