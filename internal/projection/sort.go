package projection

import (
	"cmp"
	"slices"

	"github.com/tphakala/cedar-go/internal/annotation"
)

// SortByBounds returns a copy of anns ordered by the top-left corner of
// their bounding boxes: y first, then x. Equal origins keep input order.
func SortByBounds(anns []*annotation.Annotation) []*annotation.Annotation {
	type keyed struct {
		a    *annotation.Annotation
		x, y float64
	}
	ks := make([]keyed, len(anns))
	for i, a := range anns {
		b := a.Object.Geometry.Bounds()
		ks[i] = keyed{a: a, x: b.MinX, y: b.MinY}
	}
	slices.SortStableFunc(ks, func(p, q keyed) int {
		if c := cmp.Compare(p.y, q.y); c != 0 {
			return c
		}
		return cmp.Compare(p.x, q.x)
	})
	out := make([]*annotation.Annotation, len(ks))
	for i, k := range ks {
		out[i] = k.a
	}
	return out
}
