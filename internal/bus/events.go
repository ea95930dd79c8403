package bus

import (
	"time"

	"github.com/iagocq/amicus/internal/log"
)

// LogEvent is published to TopicLog by Core.Log. Services that surface
// operational messages (the dashboard, the push notifier) subscribe to the
// log topic and filter by Level.
type LogEvent struct {
	Level   log.Level
	Service string
	Message string
	Time    time.Time
}
