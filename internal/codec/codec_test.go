package codec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/projection"
)

const legacyTwoShapes = `{
  "image_name": "slide_01.png",
  "features": {
    "class": [2, 0],
    "anno_style": ["manual", "AUTO"],
    "metadata": ["tumor border", ""]
  },
  "annotation": [
    [[40, 10], [40, 20], [50, 20], [50, 10]],
    [[5, 30], [5, 35], [9, 35]]
  ]
}`

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	reg, err := classes.NewRegistry(nil)
	require.NoError(t, err)
	return New(reg, nil, nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestGeoJSONRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	path := filepath.Join(t.TempDir(), "slide.geojson")

	in := []*annotation.Annotation{
		{
			Object:    annotation.NewObject(annotation.Polygon{{X: 1, Y: 2}, {X: 10, Y: 2}, {X: 10, Y: 12.5}}, 2),
			ClassID:   2,
			ClassName: "Gleason 3",
			Style:     annotation.StyleAutoEdited,
			Metadata:  "re-graded",
		},
		{
			Object:   annotation.NewObject(annotation.Polygon{{X: 100, Y: 200}, {X: 110, Y: 200}, {X: 110, Y: 210}, {X: 100, Y: 210}}, annotation.Unclassified),
			ClassID:  annotation.Unclassified,
			Style:    annotation.StyleManual,
			Metadata: annotation.CreatedExternally,
		},
		{
			// Ends on its first point; every vertex must survive.
			Object:    annotation.NewObject(annotation.Polygon{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 0}}, 1),
			ClassID:   1,
			ClassName: "Benign",
			Style:     annotation.StyleAuto,
		},
		{
			Object:    annotation.NewObject(annotation.Polygon{}, 0),
			ClassID:   0,
			ClassName: "Stroma",
			Style:     annotation.StyleManual,
			Metadata:  "no outline",
		},
	}
	require.NoError(t, c.Save(path, in))

	out, err := c.Load(path)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].ID(), out[i].ID(), "identity kept")
		assert.Equal(t, in[i].Object.Geometry, out[i].Object.Geometry)
		assert.Equal(t, in[i].ClassID, out[i].ClassID)
		assert.Equal(t, in[i].ClassName, out[i].ClassName)
		assert.Equal(t, in[i].Style, out[i].Style)
		assert.Equal(t, in[i].Metadata, out[i].Metadata)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	cls, ok := doc.Features[0].Properties["classification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Gleason 3", cls["name"])
	assert.Len(t, cls["color"], 3)
	assert.NotContains(t, doc.Features[1].Properties, "classification")
}

func TestLegacyLoadSwapsAxes(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	path := filepath.Join(t.TempDir(), "slide_01.json")
	writeFile(t, path, legacyTwoShapes)

	anns, err := c.Load(path)
	require.NoError(t, err)
	require.Len(t, anns, 2)

	sorted := projection.SortByBounds(anns)
	first, second := sorted[0], sorted[1]

	assert.Equal(t, 0, first.ClassID)
	assert.Equal(t, "Stroma", first.ClassName)
	assert.Equal(t, annotation.StyleAuto, first.Style)
	assert.InDelta(t, 30, first.BoundsX(), 0)
	assert.InDelta(t, 5, first.BoundsY(), 0)

	assert.Equal(t, 2, second.ClassID)
	assert.Equal(t, "Gleason 3", second.ClassName)
	assert.Equal(t, annotation.StyleManual, second.Style)
	assert.Equal(t, "tumor border", second.Metadata)
	assert.Equal(t, annotation.Point{X: 10, Y: 40}, second.Object.Geometry[0])
}

func TestLegacyMalformed(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{"},
		{"fewer classes than shapes", `{"features":{"class":[]},"annotation":[[[0,0],[1,1],[2,0]]]}`},
		{"short point", `{"features":{"class":[1]},"annotation":[[[0],[1,1],[2,0]]]}`},
		{"fractional class", `{"features":{"class":[1.5]},"annotation":[[[0,0],[1,1],[2,0]]]}`},
		{"unknown style", `{"features":{"class":[1],"anno_style":["fuzzy"]},"annotation":[[[0,0],[1,1],[2,0]]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			writeFile(t, path, tt.content)
			_, err := c.Load(path)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing), "got %v", err)
		})
	}
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	anns, err := c.Load(filepath.Join(t.TempDir(), "absent.geojson"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, anns)
}

func TestSaveKeepsBackup(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	path := filepath.Join(t.TempDir(), "annotations", "slide.geojson")
	one := []*annotation.Annotation{{
		Object:  annotation.NewObject(annotation.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}, 0),
		ClassID: 0, ClassName: "Stroma", Style: annotation.StyleManual,
	}}
	two := []*annotation.Annotation{one[0], {
		Object:  annotation.NewObject(annotation.Polygon{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}}, 1),
		ClassID: 1, ClassName: "Benign", Style: annotation.StyleAuto,
	}}

	require.NoError(t, c.Save(path, one))
	_, err := os.Stat(path + BackupSuffix)
	assert.True(t, errors.Is(err, os.ErrNotExist), "no backup for a new file")

	require.NoError(t, c.Save(path, two))

	data, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	prev, err := c.DecodeFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, prev, 1, "backup holds the first save")

	cur, err := c.Load(path)
	require.NoError(t, err)
	assert.Len(t, cur, 2, "primary holds the second save")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestSaveRejectsLegacyTarget(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	err := c.Save(filepath.Join(t.TempDir(), "slide.json"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestResolvePrefersGeoJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Resolve(dir, "slide.png")
	assert.True(t, errors.IsNotFound(err))

	writeFile(t, filepath.Join(dir, "slide.json"), legacyTwoShapes)
	p, err := Resolve(dir, "slide.png")
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, FormatOf(p))

	writeFile(t, filepath.Join(dir, "slide.geojson"), `{"type":"FeatureCollection","features":[]}`)
	p, err = Resolve(dir, "slide.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "slide.geojson"), p)
	assert.Equal(t, "slide", Stem("/data/images/slide.png"))
}

func TestConvert(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "slide_01.json")
	writeFile(t, src, legacyTwoShapes)

	n, err := c.Convert(src, filepath.Join(dir, "out", "slide_01.geojson"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	anns, err := c.Load(filepath.Join(dir, "out", "slide_01.geojson"))
	require.NoError(t, err)
	require.Len(t, anns, 2)
	assert.Equal(t, annotation.Point{X: 10, Y: 40}, anns[0].Object.Geometry[0])

	_, err = c.Convert(filepath.Join(dir, "out", "slide_01.geojson"), filepath.Join(dir, "x.geojson"))
	assert.True(t, errors.IsValidation(err))
}

func TestDecodeFeatureCollection(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	payload := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,0]]]},
	   "properties":{"classification":{"name":"Gleason 4"}}},
	  {"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[
	     [[[10,10],[12,10],[12,12],[10,10]]],
	     [[[20,20],[22,20],[22,22],[20,20]]]]},
	   "properties":{"class_id":5,"anno_style":"auto_checked"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{}}
	]}`

	anns, err := c.DecodeFeatureCollection([]byte(payload))
	require.NoError(t, err)
	require.Len(t, anns, 3, "point skipped, multipolygon split")

	assert.Equal(t, 3, anns[0].ClassID)
	assert.Equal(t, annotation.StyleAuto, anns[0].Style)
	assert.Len(t, anns[0].Object.Geometry, 3, "closing point dropped")
	assert.Equal(t, 5, anns[1].ClassID)
	assert.Equal(t, "PIN", anns[2].ClassName)
	assert.Equal(t, annotation.StyleAutoChecked, anns[2].Style)
	assert.NotEqual(t, anns[1].ID(), anns[2].ID())

	_, err = c.DecodeFeatureCollection([]byte("[]"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}
