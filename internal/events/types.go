// Package events provides a synchronous, ordered, typed publish/subscribe bus.
//
// The annotation store publishes one event per mutating call; subscribers run
// in registration order on the publishing goroutine before Publish returns.
// There is no queue and no worker pool: ordering is part of the contract.
package events

// Consumer receives events of type T.
type Consumer[T any] interface {
	// Name identifies the consumer; names are unique per bus.
	Name() string

	// ProcessEvent handles a single event.
	ProcessEvent(event T) error
}

// ConsumerFunc adapts a named function to Consumer.
type ConsumerFunc[T any] struct {
	ConsumerName string
	Fn           func(event T) error
}

// Name implements Consumer.
func (f ConsumerFunc[T]) Name() string { return f.ConsumerName }

// ProcessEvent implements Consumer.
func (f ConsumerFunc[T]) ProcessEvent(event T) error { return f.Fn(event) }

// BusStats contains runtime statistics for monitoring
type BusStats struct {
	EventsPublished uint64
	EventsProcessed uint64
	ConsumerErrors  uint64
	ConsumerPanics  uint64
}
