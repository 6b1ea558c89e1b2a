package controller

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/audit"
	"github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/projection"
	"github.com/tphakala/cedar-go/internal/store"
)

type fixture struct {
	ctrl  *Controller
	store *store.Store
	view  *projection.View
	audit *audit.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := classes.NewRegistry(nil)
	require.NoError(t, err)
	m, err := metrics.NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	auditLog := audit.New(t.Context(), audit.Config{Threshold: 10000}, nil, nil)
	t.Cleanup(func() { _ = auditLog.Close(context.Background()) })

	st := store.New(nil)
	view := projection.New()
	ctrl, err := New(st, view, reg, auditLog, nil, m)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	return &fixture{ctrl: ctrl, store: st, view: view, audit: auditLog}
}

func (f *fixture) entries(action string) []audit.Entry {
	var out []audit.Entry
	for _, e := range f.audit.Buffered() {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func shape(x, y float64) *annotation.Object {
	return annotation.NewObject(annotation.Polygon{{X: x, Y: y}, {X: x + 4, Y: y}, {X: x + 4, Y: y + 4}}, annotation.Unclassified)
}

func rec(x, y float64, classID int, name string, style annotation.Style) *annotation.Annotation {
	obj := shape(x, y)
	obj.ClassID = classID
	return &annotation.Annotation{Object: obj, ClassID: classID, ClassName: name, Style: style}
}

func TestClassEditWritesOneEntryAndOneMutation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := rec(0, 0, 1, "Benign", annotation.StyleAuto)
	f.ctrl.Load([]*annotation.Annotation{a}, "slide.geojson")

	published := f.store.ChangeStats().EventsPublished
	before := len(f.entries(""))

	require.NoError(t, f.ctrl.SetClassID(a.ID(), "2"))

	assert.Equal(t, published+1, f.store.ChangeStats().EventsPublished, "exactly one store mutation")
	assert.Len(t, f.entries(""), before+1, "exactly one audit entry")

	entry := f.entries(ActionChangeClassID)[0]
	assert.Equal(t, "class_id", entry.PropertyName)
	assert.Equal(t, "2", entry.NewValue)
	assert.Equal(t, "1", entry.OldValue)

	obj, ok := f.store.Get(a.ID())
	require.True(t, ok)
	assert.Equal(t, 2, obj.ClassID)
	assert.Equal(t, "Gleason 3", a.ClassName)
	assert.Equal(t, annotation.StyleAutoEdited, a.Style)
	assert.True(t, f.ctrl.Dirty())
	assert.Empty(t, f.entries(ActionReclassify), "own echo is not mirrored back")
}

func TestInvalidEditTouchesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := rec(0, 0, 1, "Benign", annotation.StyleAuto)
	f.ctrl.Load([]*annotation.Annotation{a}, "slide.geojson")
	published := f.store.ChangeStats().EventsPublished
	before := len(f.entries(""))

	for _, text := range []string{"abc", "", "-7"} {
		err := f.ctrl.SetClassID(a.ID(), text)
		require.Error(t, err, text)
		assert.True(t, errors.IsValidation(err))
	}
	err := f.ctrl.SetClassName(a.ID(), "Not A Class")
	assert.True(t, errors.IsValidation(err))
	err = f.ctrl.SetStyle(a.ID(), "sketchy")
	assert.True(t, errors.IsValidation(err))

	assert.Equal(t, published, f.store.ChangeStats().EventsPublished)
	assert.Len(t, f.entries(""), before)
	assert.Equal(t, 1, a.ClassID)
	assert.False(t, f.ctrl.Dirty())

	err = f.ctrl.SetMetadata(uuid.New(), "x")
	assert.True(t, errors.IsNotFound(err))
}

func TestBulkReplaceReconciles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	loaded := []*annotation.Annotation{
		rec(0, 0, 0, "Stroma", annotation.StyleAuto),
		rec(0, 10, 0, "Stroma", annotation.StyleAuto),
		rec(0, 20, 0, "Stroma", annotation.StyleAuto),
		rec(0, 30, 1, "Benign", annotation.StyleManual),
		rec(0, 40, 1, "Benign", annotation.StyleManual),
	}
	f.ctrl.Load(loaded, "slide.geojson")

	added := []*annotation.Object{shape(50, 50), shape(60, 60)}
	f.store.Merge(
		[]*annotation.Object{loaded[0].Object, loaded[1].Object, loaded[2].Object},
		added,
	)

	want := map[uuid.UUID]bool{
		loaded[3].ID(): true, loaded[4].ID(): true,
		added[0].ID: true, added[1].ID: true,
	}
	items := f.view.Items()
	require.Len(t, items, 4)
	for _, it := range items {
		assert.True(t, want[it.ID()], "unexpected record %s", it.ID())
	}

	entries := f.entries(ActionReconcile)
	require.Len(t, entries, 1)
	assert.Equal(t, "Removed: 3; Added: 2", entries[0].NewValue)

	fresh, ok := f.view.Get(added[0].ID)
	require.True(t, ok)
	assert.Equal(t, annotation.Unclassified, fresh.ClassID)
	assert.Equal(t, annotation.StyleManual, fresh.Style)
	assert.Equal(t, annotation.CreatedExternally, fresh.Metadata)
}

func TestExternalAddAndRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	drawn := shape(5, 5)

	f.store.AddObjects(drawn)
	f.store.AddObjects(drawn, drawn)
	assert.Equal(t, 1, f.view.Len(), "duplicate added events are ignored")
	assert.Len(t, f.entries(ActionAddAnnotations), 1)
	assert.True(t, f.ctrl.Dirty())
	assert.True(t, f.store.IsVisible(drawn.ID))

	f.store.RemoveObjects(drawn)
	assert.Zero(t, f.view.Len())
	assert.Len(t, f.entries(ActionRemoveAnnotation), 1)
}

func TestExternalReclassification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := rec(0, 0, 1, "Benign", annotation.StyleAuto)
	m := rec(0, 9, 1, "Benign", annotation.StyleManual)
	f.ctrl.Load([]*annotation.Annotation{a, m}, "slide.geojson")

	f.store.ChangeClassification(a.Object, 3)
	f.store.ChangeClassification(m.Object, 4)

	assert.Equal(t, "Gleason 4", a.ClassName)
	assert.Equal(t, annotation.StyleAutoEdited, a.Style)
	assert.Equal(t, "Gleason 5", m.ClassName)
	assert.Equal(t, annotation.StyleManual, m.Style, "manual records stay manual")
	assert.Len(t, f.entries(ActionReclassify), 2)
}

func TestSelectionMirroring(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := rec(0, 0, 0, "Stroma", annotation.StyleAuto)
	b := rec(0, 10, 0, "Stroma", annotation.StyleAuto)
	f.ctrl.Load([]*annotation.Annotation{a, b}, "slide.geojson")

	var storeEvents int
	unsub, err := f.store.SubscribeSelection("selection-counter", func(store.SelectionEvent) { storeEvents++ })
	require.NoError(t, err)
	defer unsub()

	f.ctrl.SelectRow(1)
	assert.Equal(t, b.ID(), f.store.Selected().ID)
	assert.Same(t, b, f.view.Selected())
	assert.Equal(t, 1, storeEvents)

	f.ctrl.SelectRow(1)
	assert.Equal(t, 1, storeEvents, "selecting the current row again is a no-op")

	f.store.Select(a.Object)
	assert.Same(t, a, f.view.Selected())
	assert.Equal(t, 2, storeEvents)

	f.ctrl.SelectRow(-1)
	assert.Nil(t, f.store.Selected())
	assert.Nil(t, f.view.Selected())
}

func TestFilterResetsRenderedSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stroma := rec(0, 0, 0, "Stroma", annotation.StyleAuto)
	benign := rec(0, 10, 1, "Benign", annotation.StyleAuto)
	f.ctrl.Load([]*annotation.Annotation{stroma, benign}, "slide.geojson")
	assert.Equal(t, 2, f.store.VisibleCount())

	published := f.store.ChangeStats().EventsPublished
	f.ctrl.ApplyFilter(projection.Filter{Field: projection.FieldClassName, Text: "benign"})
	assert.Equal(t, 1, f.store.VisibleCount())
	assert.True(t, f.store.IsVisible(benign.ID()))
	assert.Equal(t, published, f.store.ChangeStats().EventsPublished, "filtering is not a store mutation")

	require.NoError(t, f.ctrl.SetClassName(benign.ID(), "Stroma"))
	assert.Zero(t, f.store.VisibleCount(), "edited record leaves the filtered set")

	f.ctrl.ApplyFilter(projection.Filter{})
	assert.Equal(t, 2, f.store.VisibleCount())
}

func TestInsertBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.Load(nil, "slide.geojson")
	assert.False(t, f.ctrl.Dirty())

	batch := []*annotation.Annotation{
		rec(0, 30, 2, "Gleason 3", annotation.StyleAuto),
		rec(0, 10, 2, "Gleason 3", annotation.StyleAuto),
	}
	added := f.ctrl.InsertBatch(batch, "inference")
	require.Len(t, added, 2)
	assert.Equal(t, batch[1].ID(), f.view.Items()[0].ID(), "batch sorted by bounds")
	assert.Equal(t, 2, f.store.Len())
	assert.Empty(t, f.entries(ActionAddAnnotations), "own insert is not echoed")

	assert.Empty(t, f.ctrl.InsertBatch(batch, "inference"))
	assert.Equal(t, 2, f.view.Len())
	inserted := f.entries(ActionInsertBatch)
	require.Len(t, inserted, 2, "source and count of the one batch that added records")
	assert.Equal(t, "source", inserted[0].PropertyName)
	assert.Equal(t, "inference", inserted[0].NewValue)
	assert.Equal(t, "count", inserted[1].PropertyName)
	assert.Equal(t, "2", inserted[1].NewValue)
	assert.Empty(t, inserted[1].OldValue)

	loaded := f.entries(ActionLoad)
	require.Len(t, loaded, 2)
	assert.Equal(t, "slide.geojson", loaded[0].NewValue)
	assert.Equal(t, "count", loaded[1].PropertyName)
	assert.Equal(t, "0", loaded[1].NewValue)
	assert.Empty(t, loaded[1].OldValue)
	assert.True(t, f.ctrl.Dirty())

	f.ctrl.MarkSaved()
	assert.False(t, f.ctrl.Dirty())
	f.ctrl.Reset()
	assert.Zero(t, f.view.Len())
	assert.Zero(t, f.store.Len())
}

func TestMarkReviewed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	auto := rec(0, 0, 0, "Stroma", annotation.StyleAuto)
	manual := rec(0, 10, 0, "Stroma", annotation.StyleManual)
	f.ctrl.Load([]*annotation.Annotation{auto, manual}, "slide.geojson")

	assert.True(t, f.ctrl.MarkReviewed(auto))
	assert.Equal(t, annotation.StyleAutoChecked, auto.Style)
	assert.False(t, f.ctrl.MarkReviewed(auto), "already checked")
	assert.False(t, f.ctrl.MarkReviewed(manual))
	assert.Len(t, f.entries(ActionReview), 1)
}
