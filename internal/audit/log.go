package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// DefaultThreshold is the buffer length that triggers a background flush.
const DefaultThreshold = 500

// Config holds audit log settings.
type Config struct {
	// Threshold is the number of buffered entries that triggers a flush.
	Threshold int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Log is the action audit log. Begin and Complete are safe to call from
// any goroutine; flushes are serialized.
type Log struct {
	threshold int
	now       func() time.Time
	sinks     []Sink
	log       logger.Logger
	metrics   *metrics.AuditMetrics

	mu     sync.Mutex // guards buf, nextID and closed
	buf    []Entry
	nextID int64
	closed bool

	flushMu sync.Mutex // serializes flushes and guards acked
	// acked[i] counts the buffer prefix already accepted by sinks[i].
	acked []int

	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a log writing to sinks. The next id continues after the
// largest id any sink has persisted; a sink that cannot report its maximum
// is logged and ignored. m may be nil.
func New(ctx context.Context, cfg Config, log logger.Logger, m *metrics.AuditMetrics, sinks ...Sink) *Log {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Log{
		threshold: cfg.Threshold,
		now:       cfg.Now,
		sinks:     sinks,
		log:       log.Module("audit"),
		metrics:   m,
		acked:     make([]int, len(sinks)),
		flushCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}

	var maxID int64
	for _, s := range sinks {
		id, err := s.MaxID(ctx)
		if err != nil {
			l.log.Warn("failed to recover last audit id",
				logger.String("sink", s.Name()),
				logger.Error(err))
			l.recordError(metrics.OpRecovery, err)
			continue
		}
		maxID = max(maxID, id)
	}
	l.nextID = maxID + 1
	l.log.Debug("audit log ready",
		logger.Int64("next_id", l.nextID),
		logger.Int("sinks", len(sinks)),
		logger.Int("threshold", l.threshold))

	l.wg.Go(l.flushLoop)
	return l
}

// NextID returns the id the next Begin will allocate.
func (l *Log) NextID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// Begin allocates the next id and records the start time.
func (l *Log) Begin(action string) *Pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &Pending{id: l.nextID, action: action, start: l.now()}
	l.nextID++
	return p
}

// Complete finalizes p and appends it to the buffer. Completing the same
// action twice returns a state error and leaves the buffer unchanged.
func (l *Log) Complete(p *Pending, property, newValue, oldValue string) error {
	if p == nil {
		return errors.Newf("nil pending action").
			Component("audit").
			Category(errors.CategoryState).
			Build()
	}
	if !p.completed.CompareAndSwap(false, true) {
		return errors.Newf("audit action %d already completed", p.id).
			Component("audit").
			Category(errors.CategoryState).
			Context("action", p.action).
			Build()
	}

	end := l.now()
	entry := Entry{
		ID:           p.id,
		Action:       p.action,
		StartTime:    p.start,
		EndTime:      end,
		PropertyName: property,
		NewValue:     newValue,
		OldValue:     oldValue,
		Timestamp:    end,
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.Newf("audit log closed").
			Component("audit").
			Category(errors.CategoryState).
			Context("action", p.action).
			Build()
	}
	l.buf = append(l.buf, entry)
	n := len(l.buf)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.SetBuffered(n)
	}
	if n >= l.threshold {
		select {
		case l.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Record begins and completes an action in one call.
func (l *Log) Record(action, property, newValue, oldValue string) error {
	return l.Complete(l.Begin(action), property, newValue, oldValue)
}

// Buffered returns a copy of the entries waiting for a flush.
func (l *Log) Buffered() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.buf)
}

// Flush writes the buffered entries to every sink. Entries leave the
// buffer only once all sinks have accepted them; a sink that already
// accepted part of the buffer is not sent those entries again.
func (l *Log) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := slices.Clone(l.buf)
	l.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	var errs []error
	for i, s := range l.sinks {
		if l.acked[i] >= len(batch) {
			continue
		}
		if err := s.Write(ctx, batch[l.acked[i]:]); err != nil {
			l.log.Error("audit sink write failed",
				logger.String("sink", s.Name()),
				logger.Int("entries", len(batch)-l.acked[i]),
				logger.Error(err))
			l.recordError(metrics.OpFlush, err)
			errs = append(errs, errors.New(err).
				Component("audit").
				Category(errors.CategoryFileIO).
				Context("sink", s.Name()).
				Build())
			continue
		}
		l.acked[i] = len(batch)
	}
	if len(errs) > 0 {
		if l.metrics != nil {
			l.metrics.RecordOperation(metrics.OpFlush, metrics.StatusError)
		}
		return errors.Join(errs...)
	}

	// Appends only extend the tail and only flushes shrink the head, so the
	// batch is still the buffer prefix.
	l.mu.Lock()
	l.buf = slices.Delete(l.buf, 0, len(batch))
	remaining := len(l.buf)
	l.mu.Unlock()
	clear(l.acked)

	if l.metrics != nil {
		l.metrics.RecordOperation(metrics.OpFlush, metrics.StatusSuccess)
		l.metrics.RecordDuration(metrics.OpFlush, time.Since(start).Seconds())
		l.metrics.AddFlushed(len(batch))
		l.metrics.SetBuffered(remaining)
	}
	l.log.Debug("audit entries flushed",
		logger.Int("entries", len(batch)),
		logger.Int("remaining", remaining),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Close stops the background flusher, flushes what is left and closes the
// sinks. Entries completed after Close are rejected.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()

	var errs []error
	if err := l.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, errors.New(err).
				Component("audit").
				Category(errors.CategoryFileIO).
				Context("sink", s.Name()).
				Build())
		}
	}
	return errors.Join(errs...)
}

func (l *Log) flushLoop() {
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.flushCh:
			if err := l.Flush(context.Background()); err != nil {
				l.log.Warn("background audit flush failed, entries kept for retry",
					logger.Error(err))
			}
		}
	}
}

func (l *Log) recordError(op string, err error) {
	if l.metrics == nil {
		return
	}
	category := string(errors.CategoryGeneric)
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		category = string(ee.ErrorCategory())
	}
	l.metrics.RecordError(op, category)
}
