package codec

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
)

// legacyDocument is the column-oriented JSON layout of older datasets.
// Points are stored as [y, x].
type legacyDocument struct {
	ImageName string `json:"image_name"`
	Features  struct {
		Class     []json.Number `json:"class"`
		AnnoStyle []string      `json:"anno_style"`
		Metadata  []string      `json:"metadata"`
	} `json:"features"`
	Annotation [][][]float64 `json:"annotation"`
}

func parsingError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("codec").
		Category(errors.CategoryFileParsing).
		Build()
}

// decodeLegacy converts a legacy document. Missing style entries default to
// auto and missing metadata to empty; a missing class entry is an error.
func (c *Codec) decodeLegacy(data []byte) ([]*annotation.Annotation, error) {
	var doc legacyDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryFileParsing).
			Build()
	}

	if len(doc.Features.Class) < len(doc.Annotation) {
		return nil, parsingError("legacy file has %d shapes but %d classes",
			len(doc.Annotation), len(doc.Features.Class))
	}

	anns := make([]*annotation.Annotation, 0, len(doc.Annotation))
	for i, shape := range doc.Annotation {
		poly := make(annotation.Polygon, 0, len(shape))
		for j, p := range shape {
			if len(p) < 2 {
				return nil, parsingError("shape %d point %d has %d coordinates", i, j, len(p))
			}
			poly = append(poly, annotation.Point{X: p[1], Y: p[0]})
		}

		classID, err := parseClassID(doc.Features.Class[i])
		if err != nil {
			return nil, parsingError("shape %d: invalid class %q", i, doc.Features.Class[i].String())
		}

		style := annotation.StyleAuto
		if i < len(doc.Features.AnnoStyle) && doc.Features.AnnoStyle[i] != "" {
			style, err = annotation.ParseStyle(doc.Features.AnnoStyle[i])
			if err != nil {
				return nil, parsingError("shape %d: %v", i, err)
			}
		}

		var metadata string
		if i < len(doc.Features.Metadata) {
			metadata = doc.Features.Metadata[i]
		}

		anns = append(anns, &annotation.Annotation{
			Object:    annotation.NewObject(poly, classID),
			ClassID:   classID,
			ClassName: c.className(classID),
			Style:     style,
			Metadata:  metadata,
		})
	}
	return anns, nil
}

// parseClassID accepts integral numbers, including forms such as "2.0".
func parseClassID(n json.Number) (int, error) {
	if id, err := strconv.Atoi(n.String()); err == nil {
		return id, nil
	}
	f, err := n.Float64()
	if err != nil || f != float64(int(f)) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}
