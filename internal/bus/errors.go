package bus

import "errors"

// Wiring contract violations. These indicate a bug in service setup, not a
// runtime condition: correct wiring never triggers them. Callers check with
// errors.Is; the bus wraps them with the offending topic or service name.
var (
	// ErrDuplicateTopic is returned when creating a topic that already exists.
	ErrDuplicateTopic = errors.New("topic already exists")
	// ErrUnknownTopic is returned when publishing to or subscribing on a
	// topic that was never created (or was closed).
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrDuplicateSubscription is returned when a service subscribes to the
	// same topic twice.
	ErrDuplicateSubscription = errors.New("duplicate subscription")
	// ErrUnknownService is returned when an unregistered service subscribes.
	ErrUnknownService = errors.New("unknown service")
)
