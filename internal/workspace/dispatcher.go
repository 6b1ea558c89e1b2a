package workspace

import (
	"context"
	"sync"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

// defaultQueueSize bounds the tasks waiting for the dispatcher goroutine.
const defaultQueueSize = 256

// ErrDispatcherStopped is returned for work handed to a stopped dispatcher.
var ErrDispatcherStopped = errors.NewStd("dispatcher has been stopped")

// Dispatcher runs functions one at a time on a single goroutine. Everything
// that touches the store or the projection goes through it.
type Dispatcher struct {
	tasks  chan func()
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
	log    logger.Logger
}

// NewDispatcher starts a dispatcher with room for queueSize pending tasks.
func NewDispatcher(queueSize int, log logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	d := &Dispatcher{
		tasks:  make(chan func(), queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		log:    log.Module("dispatcher"),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.doneCh)
	for {
		select {
		case <-d.stopCh:
			return
		case fn := <-d.tasks:
			d.run(fn)
		}
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatched task panicked", logger.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn and returns without waiting. It reports false when the
// dispatcher has stopped; fn is then never run.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.stopCh:
		return false
	default:
	}
	select {
	case d.tasks <- fn:
		return true
	case <-d.stopCh:
		return false
	}
}

// Do runs fn on the dispatcher and waits for its result. It must not be
// called from a dispatched function.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !d.Post(func() { result <- fn() }) {
		return ErrDispatcherStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.doneCh:
		// The task may have run just before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrDispatcherStopped
		}
	}
}

// Stop ends the loop after the running task returns. Queued tasks are
// dropped. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stopCh) })
	<-d.doneCh
}
