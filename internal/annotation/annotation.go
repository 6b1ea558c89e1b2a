// Package annotation defines the data model shared by the store, the
// projection, the codec and the inference client.
package annotation

import (
	"math"
	"slices"

	"github.com/google/uuid"
)

// Unclassified is the class id of an annotation without a class.
const Unclassified = -1

// CreatedExternally is the metadata given to records created for objects
// that appeared in the store without going through the projection.
const CreatedExternally = "created externally"

// Point is a vertex in image pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Polygon is an ordered, implicitly closed ring of points.
type Polygon []Point

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Bounds returns the bounding box of the polygon. An empty polygon has zero bounds.
func (p Polygon) Bounds() Bounds {
	if len(p) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, pt := range p {
		b.MinX = min(b.MinX, pt.X)
		b.MinY = min(b.MinY, pt.Y)
		b.MaxX = max(b.MaxX, pt.X)
		b.MaxY = max(b.MaxY, pt.Y)
	}
	return b
}

// Translate returns a copy of the polygon shifted by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// Object is a spatially located, classifiable object held by the store.
// ID is its identity and is never reassigned; two objects with equal
// geometry are still different objects.
type Object struct {
	ID       uuid.UUID
	Geometry Polygon
	// ClassID is the classification the viewer renders. Only the store
	// changes it after the object has been added.
	ClassID int
}

// NewObject creates an object with a fresh identity.
func NewObject(geometry Polygon, classID int) *Object {
	return &Object{
		ID:       uuid.New(),
		Geometry: geometry,
		ClassID:  classID,
	}
}

// Clone returns a copy of the object with the same identity.
func (o *Object) Clone() *Object {
	c := *o
	c.Geometry = slices.Clone(o.Geometry)
	return &c
}

// Annotation is one projection record: an object plus the attributes the
// user reviews and edits.
type Annotation struct {
	Object    *Object
	ClassID   int
	ClassName string
	Style     Style
	Metadata  string
}

// ID returns the identity of the underlying object.
func (a *Annotation) ID() uuid.UUID {
	return a.Object.ID
}

// BoundsX is the minimum x of the geometry.
func (a *Annotation) BoundsX() float64 {
	return a.Object.Geometry.Bounds().MinX
}

// BoundsY is the minimum y of the geometry.
func (a *Annotation) BoundsY() float64 {
	return a.Object.Geometry.Bounds().MinY
}

// Clone returns a copy of the record with its own copy of the object. The
// identity is kept.
func (a *Annotation) Clone() *Annotation {
	c := *a
	if a.Object != nil {
		c.Object = a.Object.Clone()
	}
	return &c
}

// CloneAll clones every record of anns.
func CloneAll(anns []*Annotation) []*Annotation {
	out := make([]*Annotation, len(anns))
	for i, a := range anns {
		out[i] = a.Clone()
	}
	return out
}
