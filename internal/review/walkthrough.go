// Package review implements the timed review walkthrough: it steps through
// the visible projection rows at a fixed interval, selecting each record
// and optionally promoting machine annotations to auto_checked.
//
// The walkthrough owns a ticker goroutine that never touches the store or
// the projection. Every tick is posted to the dispatcher, which runs the
// step on the goroutine that owns them.
package review

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/projection"
)

// DefaultInterval is the step interval used when none is configured.
const DefaultInterval = 2 * time.Second

// State is the walkthrough state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Target is what the walkthrough steps through. *controller.Controller
// implements it.
type Target interface {
	View() *projection.View
	SelectID(id uuid.UUID) error
	MarkReviewed(rec *annotation.Annotation) bool
}

// Ticker abstracts time.Ticker so tests can drive steps by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Options configures a Walkthrough.
type Options struct {
	Interval   time.Duration
	AutoAssign bool
	// NewTicker defaults to NewTimeTicker.
	NewTicker func(time.Duration) Ticker
	// OnStep, if set, is called on the dispatcher after every step.
	OnStep func(rec *annotation.Annotation, promoted bool)
}

// Walkthrough is the review state machine. Start, Pause, Stop and the
// steps run on the dispatcher; SetInterval, State and the accessors may be
// called from any goroutine.
type Walkthrough struct {
	target    Target
	post      func(func())
	newTicker func(time.Duration) Ticker
	onStep    func(*annotation.Annotation, bool)
	log       logger.Logger

	mu         sync.Mutex
	state      State
	interval   time.Duration
	autoAssign bool
	schedule   []uuid.UUID
	next       int
	// run changes whenever a ticker goroutine is started or stopped, so
	// steps posted by an older run are dropped.
	run  uint64
	done chan struct{}

	wg sync.WaitGroup
}

// New creates an idle walkthrough over target. post hands a step to the
// dispatcher.
func New(target Target, post func(func()), opts Options, log logger.Logger) *Walkthrough {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	return &Walkthrough{
		target:     target,
		post:       post,
		newTicker:  opts.NewTicker,
		onStep:     opts.OnStep,
		log:        log.Module("review"),
		interval:   opts.Interval,
		autoAssign: opts.AutoAssign,
	}
}

// State returns the current state.
func (w *Walkthrough) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Interval returns the last valid interval.
func (w *Walkthrough) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// SetInterval parses text as a positive number of seconds. Invalid input
// is rejected and the previous interval stays in effect. A running
// walkthrough picks up the new interval immediately.
func (w *Walkthrough) SetInterval(text string) error {
	secs, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return errors.Newf("review interval must be a positive number of seconds: %q", text).
			Component("review").
			Category(errors.CategoryValidation).
			Context("interval", w.Interval().String()).
			Build()
	}
	d := time.Duration(secs * float64(time.Second))

	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = d
	if w.state == Running {
		w.stopTickerLocked()
		w.startTickerLocked()
	}
	return nil
}

// AutoAssign reports whether steps promote auto records.
func (w *Walkthrough) AutoAssign() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.autoAssign
}

// SetAutoAssign turns promotion of auto records on or off.
func (w *Walkthrough) SetAutoAssign(on bool) {
	w.mu.Lock()
	w.autoAssign = on
	w.mu.Unlock()
}

// Remaining returns the number of scheduled steps not yet taken.
func (w *Walkthrough) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.schedule) - w.next
}

// Start runs the walkthrough. From Paused it resumes where it left off;
// from Idle or Stopped it schedules the visible rows starting at the
// selected row, or at row 0 when nothing is selected. Starting with no
// visible rows is a state error. Start must run on the dispatcher.
func (w *Walkthrough) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Running:
		return nil
	case Paused:
		w.state = Running
		w.startTickerLocked()
		w.log.Debug("walkthrough resumed", logger.Int("remaining", len(w.schedule)-w.next))
		return nil
	}

	schedule := w.buildSchedule()
	if len(schedule) == 0 {
		return errors.Newf("no visible annotations to review").
			Component("review").
			Category(errors.CategoryState).
			Build()
	}
	w.schedule = schedule
	w.next = 0
	w.state = Running
	w.startTickerLocked()
	w.log.Info("walkthrough started",
		logger.Int("steps", len(schedule)),
		logger.Duration("interval", w.interval),
		logger.Bool("auto_assign", w.autoAssign))
	return nil
}

// Pause halts stepping and keeps the schedule.
func (w *Walkthrough) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Running {
		return
	}
	w.stopTickerLocked()
	w.state = Paused
}

// Stop halts stepping and discards the remaining schedule.
func (w *Walkthrough) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Running && w.state != Paused {
		return
	}
	w.stopTickerLocked()
	w.schedule = nil
	w.next = 0
	w.state = Stopped
	w.log.Info("walkthrough stopped")
}

// Close stops the walkthrough and waits for the ticker goroutine to exit.
func (w *Walkthrough) Close() {
	w.Stop()
	w.wg.Wait()
}

func (w *Walkthrough) buildSchedule() []uuid.UUID {
	view := w.target.View()
	start := view.SelectedRow()
	if start < 0 {
		start = 0
	}
	visible := view.Visible()
	if start >= len(visible) {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(visible)-start)
	for _, rec := range visible[start:] {
		ids = append(ids, rec.ID())
	}
	return ids
}

func (w *Walkthrough) startTickerLocked() {
	w.run++
	run := w.run
	done := make(chan struct{})
	w.done = done
	ticker := w.newTicker(w.interval)

	w.wg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				w.post(func() { w.step(run) })
			}
		}
	})
}

func (w *Walkthrough) stopTickerLocked() {
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
	w.run++
}

// step takes one scheduled step. Records removed since scheduling are
// skipped without consuming a tick.
func (w *Walkthrough) step(run uint64) {
	w.mu.Lock()
	if w.state != Running || run != w.run {
		w.mu.Unlock()
		return
	}
	view := w.target.View()
	var rec *annotation.Annotation
	for w.next < len(w.schedule) {
		id := w.schedule[w.next]
		w.next++
		if r, ok := view.Get(id); ok {
			rec = r
			break
		}
	}
	exhausted := w.next >= len(w.schedule)
	if exhausted {
		w.stopTickerLocked()
		w.schedule = nil
		w.next = 0
		w.state = Idle
	}
	autoAssign := w.autoAssign
	w.mu.Unlock()

	if rec == nil {
		w.log.Debug("walkthrough finished")
		return
	}
	if err := w.target.SelectID(rec.ID()); err != nil {
		w.log.Warn("walkthrough selection failed", logger.Error(err))
	}
	promoted := autoAssign && w.target.MarkReviewed(rec)
	if w.onStep != nil {
		w.onStep(rec, promoted)
	}
	if exhausted {
		w.log.Debug("walkthrough finished")
	}
}
