package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/controller"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/projection"
	"github.com/tphakala/cedar-go/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualTicker struct {
	ch       chan time.Time
	interval time.Duration
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

// harness drives a walkthrough by hand: tick fires the newest ticker and
// runs the step it posts.
type harness struct {
	t       *testing.T
	ctrl    *controller.Controller
	w       *Walkthrough
	tickers []*manualTicker
	steps   chan func()
	records []*annotation.Annotation
}

func newHarness(t *testing.T, autoAssign bool, styles ...annotation.Style) *harness {
	t.Helper()
	reg, err := classes.NewRegistry(nil)
	require.NoError(t, err)
	ctrl, err := controller.New(store.New(nil), projection.New(), reg, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	h := &harness{t: t, ctrl: ctrl, steps: make(chan func(), 8)}
	for i, st := range styles {
		obj := annotation.NewObject(annotation.Polygon{{X: 0, Y: float64(i * 10)}, {X: 5, Y: float64(i * 10)}, {X: 5, Y: float64(i*10 + 5)}}, 0)
		h.records = append(h.records, &annotation.Annotation{Object: obj, ClassID: 0, ClassName: "Stroma", Style: st})
	}
	ctrl.Load(h.records, "test")

	h.w = New(ctrl, func(fn func()) { h.steps <- fn }, Options{
		AutoAssign: autoAssign,
		NewTicker: func(d time.Duration) Ticker {
			tk := &manualTicker{ch: make(chan time.Time), interval: d}
			h.tickers = append(h.tickers, tk)
			return tk
		},
	}, nil)
	t.Cleanup(h.w.Close)
	return h
}

func (h *harness) fire() func() {
	h.t.Helper()
	require.NotEmpty(h.t, h.tickers)
	h.tickers[len(h.tickers)-1].ch <- time.Now()
	return <-h.steps
}

func (h *harness) tick() {
	h.t.Helper()
	h.fire()()
}

func TestWalkthroughStepsAndPromotes(t *testing.T) {
	h := newHarness(t, true, annotation.StyleAuto, annotation.StyleManual, annotation.StyleAuto)
	w := h.w
	assert.Equal(t, Idle, w.State())

	h.ctrl.SelectRow(1)
	require.NoError(t, w.Start())
	assert.Equal(t, Running, w.State())
	assert.Equal(t, 2, w.Remaining(), "schedule starts at the selected row")

	h.tick()
	assert.Same(t, h.records[1], h.ctrl.View().Selected())
	assert.Equal(t, annotation.StyleManual, h.records[1].Style)

	w.Pause()
	assert.Equal(t, Paused, w.State())
	require.NoError(t, w.Start())
	assert.Equal(t, Running, w.State())
	assert.Equal(t, 1, w.Remaining(), "resume keeps the schedule")

	h.tick()
	assert.Same(t, h.records[2], h.ctrl.View().Selected())
	assert.Equal(t, annotation.StyleAutoChecked, h.records[2].Style)
	assert.Equal(t, annotation.StyleAuto, h.records[0].Style, "rows before the start row are not visited")
	assert.Equal(t, Idle, w.State(), "exhausted schedule returns to idle")
	assert.True(t, h.ctrl.Dirty())
}

func TestWalkthroughWithoutAutoAssign(t *testing.T) {
	h := newHarness(t, false, annotation.StyleAuto)
	require.NoError(t, h.w.Start())
	h.tick()
	assert.Equal(t, annotation.StyleAuto, h.records[0].Style)
	assert.Same(t, h.records[0], h.ctrl.View().Selected())
}

func TestWalkthroughStopDiscardsSchedule(t *testing.T) {
	h := newHarness(t, true, annotation.StyleAuto, annotation.StyleAuto, annotation.StyleAuto)
	w := h.w

	require.NoError(t, w.Start())
	assert.Equal(t, 3, w.Remaining())

	late := h.fire()
	w.Stop()
	assert.Equal(t, Stopped, w.State())
	assert.Zero(t, w.Remaining())

	late()
	assert.Equal(t, annotation.StyleAuto, h.records[0].Style, "step posted before stop is dropped")
	assert.Equal(t, Stopped, w.State(), "stopped until started again")

	h.ctrl.SelectRow(2)
	require.NoError(t, w.Start())
	assert.Equal(t, 1, w.Remaining(), "restart rebuilds from the selected row")
}

func TestWalkthroughSkipsRemovedRecords(t *testing.T) {
	h := newHarness(t, true, annotation.StyleAuto, annotation.StyleAuto)
	require.NoError(t, h.w.Start())

	h.ctrl.Store().RemoveObjects(h.records[0].Object)
	h.tick()
	assert.Equal(t, annotation.StyleAutoChecked, h.records[1].Style)
	assert.Equal(t, Idle, h.w.State())
}

func TestWalkthroughStartWithNothingVisible(t *testing.T) {
	h := newHarness(t, true)
	err := h.w.Start()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, Idle, h.w.State())
}

func TestSetIntervalRejectsBadInput(t *testing.T) {
	h := newHarness(t, false, annotation.StyleAuto)
	w := h.w
	assert.Equal(t, DefaultInterval, w.Interval())

	for _, text := range []string{"abc", "", "0", "-1.5", "NaN", "Inf"} {
		err := w.SetInterval(text)
		require.Error(t, err, text)
		assert.True(t, errors.IsValidation(err), text)
		assert.Equal(t, DefaultInterval, w.Interval(), "interval reverts for %q", text)
	}

	require.NoError(t, w.SetInterval(" 0.5 "))
	assert.Equal(t, 500*time.Millisecond, w.Interval())

	require.NoError(t, w.Start())
	require.NoError(t, w.SetInterval("3"))
	last := h.tickers[len(h.tickers)-1]
	assert.Equal(t, 3*time.Second, last.interval, "running walkthrough restarts its ticker")
	assert.Len(t, h.tickers, 2)
}
