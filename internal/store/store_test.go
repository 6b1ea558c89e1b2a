package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/annotation"
)

func square(x, y float64) *annotation.Object {
	return annotation.NewObject(annotation.Polygon{
		{X: x, Y: y}, {X: x + 10, Y: y}, {X: x + 10, Y: y + 10}, {X: x, Y: y + 10},
	}, annotation.Unclassified)
}

type recorder struct {
	changes    []ChangeEvent
	selections []SelectionEvent
}

func newRecordedStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	s := New(nil)
	rec := &recorder{}
	_, err := s.Subscribe("recorder", func(ev ChangeEvent) { rec.changes = append(rec.changes, ev) })
	require.NoError(t, err)
	_, err = s.SubscribeSelection("recorder", func(ev SelectionEvent) { rec.selections = append(rec.selections, ev) })
	require.NoError(t, err)
	return s, rec
}

func TestAddEmitsOneEventPerCall(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a, b := square(0, 0), square(20, 0)

	s.AddObjects(a, b)
	require.Len(t, rec.changes, 1)
	assert.Equal(t, Added, rec.changes[0].Kind)
	assert.Len(t, rec.changes[0].Affected, 2)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.IsVisible(a.ID))
}

func TestDuplicateAddStillReported(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a := square(0, 0)

	s.AddObjects(a)
	s.AddObjects(a)

	assert.Equal(t, 1, s.Len(), "membership is idempotent")
	require.Len(t, rec.changes, 2)
	assert.Equal(t, []*annotation.Object{a}, rec.changes[1].Affected)
}

func TestRemoveReportsOnlyRemoved(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a, b, stranger := square(0, 0), square(20, 0), square(40, 0)
	s.AddObjects(a, b)

	s.RemoveObjects(a, stranger)
	require.Len(t, rec.changes, 2)
	assert.Equal(t, Removed, rec.changes[1].Kind)
	assert.Equal(t, []*annotation.Object{a}, rec.changes[1].Affected)
	assert.False(t, s.Contains(a.ID))

	s.RemoveObjects(stranger)
	assert.Len(t, rec.changes, 2, "nothing removed, nothing published")
}

func TestBulkOperations(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a, b, c := square(0, 0), square(20, 0), square(40, 0)
	s.AddObjects(a, b)

	s.Merge([]*annotation.Object{a}, []*annotation.Object{c})
	assert.Equal(t, BulkReplaced, rec.changes[len(rec.changes)-1].Kind)
	assert.Empty(t, rec.changes[len(rec.changes)-1].Affected)
	assert.ElementsMatch(t, []*annotation.Object{b, c}, s.Objects())

	s.ReplaceAll([]*annotation.Object{a})
	assert.Equal(t, []*annotation.Object{a}, s.Objects())

	s.ClearAll()
	assert.Equal(t, 0, s.Len())
	assert.Len(t, rec.changes, 4)
}

func TestChangeClassification(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a := square(0, 0)
	s.AddObjects(a)

	require.True(t, s.ChangeClassification(a, 3))
	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, Reclassified, last.Kind)
	assert.Equal(t, 3, last.NewClassID)
	assert.Equal(t, 3, a.ClassID)

	assert.False(t, s.ChangeClassification(square(1, 1), 2))
}

func TestSelectionShortCircuit(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a, b := square(0, 0), square(20, 0)
	s.AddObjects(a, b)

	s.Select(a)
	s.Select(a)
	s.Select(b)
	require.Len(t, rec.selections, 2)
	assert.Same(t, a, rec.selections[1].Previous)
	assert.Same(t, b, s.Selected())

	s.Select(square(5, 5))
	assert.Same(t, b, s.Selected(), "objects outside the store cannot be selected")

	s.RemoveObjects(b)
	assert.Nil(t, s.Selected())
	assert.Len(t, rec.selections, 3)
}

func TestResetVisibleDoesNotPublish(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStore(t)
	a, b := square(0, 0), square(20, 0)
	s.AddObjects(a, b)
	before := len(rec.changes)

	s.ResetVisible([]*annotation.Object{b, square(1, 1)})
	assert.Len(t, rec.changes, before)
	assert.Equal(t, 1, s.VisibleCount())
	assert.True(t, s.IsVisible(b.ID))
	assert.False(t, s.IsVisible(a.ID))
}
