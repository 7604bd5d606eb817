package domain

// Event is anything the producer can publish. Serialize must be deterministic.
type Event interface {
	Serialize() ([]byte, error)
}

// EventSubmitter accepts events from arbitrary goroutines without blocking.
type EventSubmitter interface {
	Submit(event Event, routingKey string)
}
