package codec

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
)

// Feature property keys.
const (
	propClassID        = "class_id"
	propStyle          = "anno_style"
	propMetadata       = "metadata"
	propClassification = "classification"
	propObjectType     = "objectType"

	objectTypeAnnotation = "annotation"
)

// EncodeGeoJSON renders annotations as a FeatureCollection of polygons.
// Feature ids carry object identities so a reload keeps them.
func (c *Codec) EncodeGeoJSON(anns []*annotation.Annotation) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, a := range anns {
		f := geojson.NewFeature(toOrbPolygon(a.Object.Geometry))
		f.ID = a.ID().String()
		f.Properties[propObjectType] = objectTypeAnnotation
		f.Properties[propClassID] = a.ClassID
		f.Properties[propStyle] = a.Style.String()
		f.Properties[propMetadata] = a.Metadata
		if a.ClassID != annotation.Unclassified {
			cls := map[string]any{"name": c.className(a.ClassID)}
			if rgb, ok := c.classes.ColorOf(a.ClassID); ok {
				cls["color"] = []int{int(rgb.R), int(rgb.G), int(rgb.B)}
			}
			f.Properties[propClassification] = cls
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryFileIO).
			Build()
	}
	return data, nil
}

// decodeGeoJSON reads polygon and multipolygon features. Each polygon of a
// multipolygon becomes its own annotation. Other geometries are skipped.
func (c *Codec) decodeGeoJSON(data []byte, defaultStyle annotation.Style) ([]*annotation.Annotation, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryFileParsing).
			Build()
	}

	anns := make([]*annotation.Annotation, 0, len(fc.Features))
	for i, f := range fc.Features {
		var polys []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{g}
		case orb.MultiPolygon:
			polys = g
			if len(polys) == 0 {
				polys = []orb.Polygon{nil}
			}
		default:
			continue
		}

		classID := c.featureClassID(f)
		style := defaultStyle
		if s := f.Properties.MustString(propStyle, ""); s != "" {
			style, err = annotation.ParseStyle(s)
			if err != nil {
				return nil, parsingError("feature %d: %v", i, err)
			}
		}
		metadata := f.Properties.MustString(propMetadata, "")

		for j, p := range polys {
			var ring orb.Ring
			if len(p) > 0 {
				ring = p[0]
			}
			obj := annotation.NewObject(fromOrbRing(ring), classID)
			if j == 0 {
				if id, ok := featureID(f); ok {
					obj.ID = id
				}
			}
			anns = append(anns, &annotation.Annotation{
				Object:    obj,
				ClassID:   classID,
				ClassName: c.className(classID),
				Style:     style,
				Metadata:  metadata,
			})
		}
	}
	return anns, nil
}

// featureClassID prefers the numeric class_id property and falls back to
// the classification name.
func (c *Codec) featureClassID(f *geojson.Feature) int {
	if v, ok := f.Properties[propClassID]; ok {
		if n, ok := v.(float64); ok && n == float64(int(n)) {
			return int(n)
		}
	}
	if cls, ok := f.Properties[propClassification].(map[string]any); ok {
		if name, ok := cls["name"].(string); ok && name != "" {
			return c.classes.IDOf(name)
		}
	}
	return annotation.Unclassified
}

func featureID(f *geojson.Feature) (uuid.UUID, bool) {
	s, ok := f.ID.(string)
	if !ok {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}

// toOrbPolygon closes the ring as GeoJSON requires. The first point is
// always repeated, even when the polygon already ends on it, so that
// fromOrbRing can drop exactly one point.
func toOrbPolygon(p annotation.Polygon) orb.Polygon {
	ring := make(orb.Ring, 0, len(p)+1)
	for _, pt := range p {
		ring = append(ring, orb.Point{pt.X, pt.Y})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

// fromOrbRing drops the one closing point. Open rings from other writers
// are kept as they are.
func fromOrbRing(r orb.Ring) annotation.Polygon {
	if len(r) > 1 && r.Closed() {
		r = r[:len(r)-1]
	}
	out := make(annotation.Polygon, len(r))
	for i, pt := range r {
		out[i] = annotation.Point{X: pt.X(), Y: pt.Y()}
	}
	return out
}
