package events

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

// Bus delivers events of type T to its consumers synchronously and in
// registration order.
type Bus[T any] struct {
	name string

	mu        sync.Mutex
	consumers []Consumer[T]

	published atomic.Uint64
	processed atomic.Uint64
	errs      atomic.Uint64
	panics    atomic.Uint64

	logger logger.Logger
}

// NewBus creates a bus. The name appears in log output only.
func NewBus[T any](name string, log logger.Logger) *Bus[T] {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Bus[T]{
		name:   name,
		logger: log.With(logger.String("bus", name)),
	}
}

// RegisterConsumer adds a consumer and returns a function that removes it.
func (b *Bus[T]) RegisterConsumer(consumer Consumer[T]) (func(), error) {
	if b == nil {
		return nil, errors.Newf("event bus not initialized").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}
	if consumer == nil {
		return nil, errors.ValidationError("consumer cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return nil, errors.Newf("consumer %s already registered on %s", consumer.Name(), b.name).
				Component("events").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	b.consumers = append(b.consumers, consumer)
	b.logger.Debug("registered event consumer", logger.String("consumer", consumer.Name()))

	return func() { b.unregister(consumer.Name()) }, nil
}

// Subscribe registers fn under name.
func (b *Bus[T]) Subscribe(name string, fn func(event T)) (func(), error) {
	return b.RegisterConsumer(ConsumerFunc[T]{
		ConsumerName: name,
		Fn: func(event T) error {
			fn(event)
			return nil
		},
	})
}

func (b *Bus[T]) unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = slices.DeleteFunc(b.consumers, func(c Consumer[T]) bool {
		return c.Name() == name
	})
}

// Publish delivers event to every consumer registered at the time of the
// call and returns the number that processed it without error. A consumer
// that errors or panics is logged and does not stop delivery to the rest.
func (b *Bus[T]) Publish(event T) int {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	consumers := slices.Clone(b.consumers)
	b.mu.Unlock()

	b.published.Add(1)

	delivered := 0
	for _, consumer := range consumers {
		if b.deliver(consumer, event) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus[T]) deliver(consumer Consumer[T], event T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("consumer panicked",
				logger.String("consumer", consumer.Name()),
				logger.Any("panic", fmt.Sprint(r)))
			ok = false
		}
	}()

	if err := consumer.ProcessEvent(event); err != nil {
		b.errs.Add(1)
		b.logger.Error("consumer error",
			logger.String("consumer", consumer.Name()),
			logger.Error(err))
		return false
	}
	b.processed.Add(1)
	return true
}

// ConsumerCount returns the number of registered consumers.
func (b *Bus[T]) ConsumerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.consumers)
}

// GetStats returns current bus statistics
func (b *Bus[T]) GetStats() BusStats {
	if b == nil {
		return BusStats{}
	}
	return BusStats{
		EventsPublished: b.published.Load(),
		EventsProcessed: b.processed.Load(),
		ConsumerErrors:  b.errs.Load(),
		ConsumerPanics:  b.panics.Load(),
	}
}
