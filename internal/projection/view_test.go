package projection

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
)

func record(x, y float64, classID int, className string, style annotation.Style, metadata string) *annotation.Annotation {
	obj := annotation.NewObject(annotation.Polygon{{X: x, Y: y}, {X: x + 5, Y: y}, {X: x + 5, Y: y + 5}}, classID)
	return &annotation.Annotation{
		Object:    obj,
		ClassID:   classID,
		ClassName: className,
		Style:     style,
		Metadata:  metadata,
	}
}

func ids(anns []*annotation.Annotation) []uuid.UUID {
	out := make([]uuid.UUID, len(anns))
	for i, a := range anns {
		out[i] = a.ID()
	}
	return out
}

func TestSortByBoundsStable(t *testing.T) {
	t.Parallel()

	first := record(10, 10, 0, "Stroma", annotation.StyleAuto, "first")
	second := record(10, 10, 0, "Stroma", annotation.StyleAuto, "second")
	top := record(50, 0, 0, "Stroma", annotation.StyleAuto, "top")
	left := record(0, 10, 0, "Stroma", annotation.StyleAuto, "left")

	sorted := SortByBounds([]*annotation.Annotation{first, second, top, left})
	assert.Equal(t, ids([]*annotation.Annotation{top, left, first, second}), ids(sorted))

	again := SortByBounds(sorted)
	assert.Equal(t, ids(sorted), ids(again), "sorting twice is stable")
}

func TestFilterFields(t *testing.T) {
	t.Parallel()

	tumor := record(0, 0, 2, "Gleason 3", annotation.StyleAuto, "Needs second opinion")
	stroma := record(0, 10, 0, "Stroma", annotation.StyleManual, "")
	edited := record(0, 20, 12, "12", annotation.StyleAutoEdited, "checked by PATHOLOGIST")

	v := New()
	v.SetItems([]*annotation.Annotation{tumor, stroma, edited})

	tests := []struct {
		name   string
		filter Filter
		want   []*annotation.Annotation
	}{
		{"empty matches all", Filter{}, []*annotation.Annotation{tumor, stroma, edited}},
		{"class name substring, case-insensitive", Filter{Field: FieldClassName, Text: "gleason"}, []*annotation.Annotation{tumor}},
		{"class id exact", Filter{Field: FieldClassID, Text: "2"}, []*annotation.Annotation{tumor}},
		{"class id is exact, not prefix", Filter{Field: FieldClassID, Text: "1"}, nil},
		{"class id falls back to name", Filter{Field: FieldClassID, Text: "strom"}, []*annotation.Annotation{stroma}},
		{"metadata", Filter{Field: FieldMetadata, Text: "pathologist"}, []*annotation.Annotation{edited}},
		{"style", Filter{Field: FieldStyle, Text: "AUTO"}, []*annotation.Annotation{tumor, edited}},
		{"class set", Filter{Classes: []string{"Stroma", "12"}}, []*annotation.Annotation{stroma, edited}},
		{"text AND class set", Filter{Field: FieldStyle, Text: "auto", Classes: []string{"Stroma", "12"}}, []*annotation.Annotation{edited}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v.SetFilter(tt.filter)
			assert.Equal(t, ids(tt.want), ids(v.Visible()))
		})
	}
}

func TestFilterIdempotent(t *testing.T) {
	t.Parallel()

	v := New()
	v.SetItems([]*annotation.Annotation{
		record(0, 0, 1, "Benign", annotation.StyleAuto, ""),
		record(0, 1, 2, "Gleason 3", annotation.StyleManual, ""),
		record(0, 2, 1, "Benign", annotation.StyleAutoChecked, "ok"),
	})

	f := Filter{Field: FieldClassName, Text: "benign"}
	v.SetFilter(f)
	once := ids(v.Visible())
	v.SetFilter(f)
	assert.Equal(t, once, ids(v.Visible()))
	assert.Len(t, once, 2)
}

func TestAppendInsertRemove(t *testing.T) {
	t.Parallel()

	a := record(0, 30, 0, "Stroma", annotation.StyleManual, "")
	b := record(0, 10, 0, "Stroma", annotation.StyleManual, "")
	c := record(0, 20, 0, "Stroma", annotation.StyleManual, "")

	v := New()
	v.SetItems([]*annotation.Annotation{a})

	added := v.InsertBatch([]*annotation.Annotation{b, c, a})
	assert.Equal(t, ids([]*annotation.Annotation{b, c}), ids(added), "batch sorted, duplicates skipped")
	assert.Equal(t, ids([]*annotation.Annotation{a, b, c}), ids(v.Items()))

	v.Select(b)
	assert.Equal(t, 1, v.SelectedRow())

	removed := v.Remove(map[uuid.UUID]struct{}{b.ID(): {}, uuid.New(): {}})
	assert.Equal(t, 1, removed)
	assert.Nil(t, v.Selected())
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, -1, v.SelectedRow())
}

func TestSelectOutsideViewIgnored(t *testing.T) {
	t.Parallel()

	v := New()
	a := record(0, 0, 0, "Stroma", annotation.StyleManual, "")
	v.SetItems([]*annotation.Annotation{a})

	v.Select(record(5, 5, 0, "Stroma", annotation.StyleManual, ""))
	assert.Nil(t, v.Selected())

	v.Select(a)
	row, ok := v.VisibleAt(v.SelectedRow())
	require.True(t, ok)
	assert.Same(t, a, row)

	_, ok = v.VisibleAt(3)
	assert.False(t, ok)
}

func TestParseField(t *testing.T) {
	t.Parallel()

	f, err := ParseField("Metadata")
	require.NoError(t, err)
	assert.Equal(t, FieldMetadata, f)
	assert.Equal(t, "class_id", FieldClassID.String())

	_, err = ParseField("color")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestApplyBatch(t *testing.T) {
	t.Parallel()

	keep := record(0, 0, 0, "Stroma", annotation.StyleManual, "")
	drop := record(0, 5, 0, "Stroma", annotation.StyleManual, "")
	lateTop := record(0, 1, 1, "Benign", annotation.StyleAuto, "")
	lateLow := record(0, 9, 1, "Benign", annotation.StyleAuto, "")

	v := New()
	v.SetItems([]*annotation.Annotation{keep, drop})
	v.Select(drop)

	removed, added := v.ApplyBatch(map[uuid.UUID]struct{}{drop.ID(): {}}, []*annotation.Annotation{lateLow, lateTop, keep})
	assert.Equal(t, 1, removed)
	assert.Equal(t, ids([]*annotation.Annotation{lateTop, lateLow}), ids(added))
	assert.Equal(t, ids([]*annotation.Annotation{keep, lateTop, lateLow}), ids(v.Visible()))
	assert.Nil(t, v.Selected())
}
