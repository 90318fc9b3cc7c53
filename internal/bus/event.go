package bus

import "time"

// Event is a domain event published on the bus. Kind is a dotted name
// ("wa.message", "sync.history_applied") used for prefix matching.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
