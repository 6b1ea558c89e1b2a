// Package codec reads and writes annotation files. GeoJSON is the only
// format written; the legacy JSON layout is read for older datasets.
package codec

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// File extensions.
const (
	ExtGeoJSON   = ".geojson"
	ExtLegacy    = ".json"
	BackupSuffix = ".bak"
)

// Format identifies an annotation file layout.
type Format int

const (
	FormatUnknown Format = iota
	FormatGeoJSON
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatGeoJSON:
		return "geojson"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtGeoJSON:
		return FormatGeoJSON
	case ExtLegacy:
		return FormatLegacy
	default:
		return FormatUnknown
	}
}

// ClassLookup resolves class ids, names and colors.
type ClassLookup interface {
	IDOf(name string) int
	NameOf(id int) string
	ColorOf(id int) (color.RGBA, bool)
}

// Codec loads and saves annotation files.
type Codec struct {
	classes ClassLookup
	log     logger.Logger
	metrics metrics.Recorder
}

// New creates a codec. rec may be nil.
func New(classes ClassLookup, log logger.Logger, rec metrics.Recorder) *Codec {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Codec{
		classes: classes,
		log:     log.Module("codec"),
		metrics: metrics.OrNoOp(rec),
	}
}

// Load reads the annotation file at path. A missing file is reported as a
// not-found error, which callers treat as an empty annotation set.
func (c *Codec) Load(path string) ([]*annotation.Annotation, error) {
	start := time.Now()
	format := FormatOf(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c.metrics.RecordOperation(metrics.OpLoad, "missing")
		return nil, errors.NotFoundError("annotation file", path)
	}
	if err != nil {
		c.fail(metrics.OpLoad, err)
		return nil, errors.FileError(err, path)
	}

	var anns []*annotation.Annotation
	switch format {
	case FormatGeoJSON:
		anns, err = c.decodeGeoJSON(data, annotation.StyleAuto)
	case FormatLegacy:
		anns, err = c.decodeLegacy(data)
	default:
		err = errors.Newf("unsupported annotation file extension %q", filepath.Ext(path)).
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		c.fail(metrics.OpLoad, err)
		return nil, errors.New(err).
			Component("codec").
			FileContext(path).
			Context("format", format.String()).
			Build()
	}

	c.metrics.RecordOperation(metrics.OpLoad, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpLoad, time.Since(start).Seconds())
	c.log.Info("annotations loaded",
		logger.String("path", path),
		logger.String("format", format.String()),
		logger.Int("count", len(anns)),
		logger.Duration("elapsed", time.Since(start)))
	return anns, nil
}

// DecodeFeatureCollection parses a GeoJSON payload such as an inference
// response. Features without a style are marked auto.
func (c *Codec) DecodeFeatureCollection(data []byte) ([]*annotation.Annotation, error) {
	anns, err := c.decodeGeoJSON(data, annotation.StyleAuto)
	if err != nil {
		return nil, errors.New(err).Component("codec").Build()
	}
	return anns, nil
}

// Convert reads a legacy file and writes it as GeoJSON to dst. It returns
// the number of annotations converted.
func (c *Codec) Convert(src, dst string) (int, error) {
	if FormatOf(src) != FormatLegacy {
		return 0, errors.Newf("convert source must be a %s file: %s", ExtLegacy, src).
			Component("codec").
			Category(errors.CategoryValidation).
			Build()
	}
	anns, err := c.Load(src)
	if err != nil {
		return 0, err
	}
	if err := c.Save(dst, anns); err != nil {
		return 0, err
	}
	c.metrics.RecordOperation(metrics.OpConvert, metrics.StatusSuccess)
	return len(anns), nil
}

// Stem returns the image file name without its extension.
func Stem(image string) string {
	base := filepath.Base(image)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AnnotationPath is the file Save writes for image in dir.
func AnnotationPath(dir, image string) string {
	return filepath.Join(dir, Stem(image)+ExtGeoJSON)
}

// Resolve finds the annotation file for image in dir, preferring GeoJSON
// over legacy JSON. When neither exists it returns the GeoJSON path and a
// not-found error.
func Resolve(dir, image string) (string, error) {
	stem := Stem(image)
	for _, ext := range []string{ExtGeoJSON, ExtLegacy} {
		p := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p := AnnotationPath(dir, image)
	return p, errors.NotFoundError("annotation file", p)
}

func (c *Codec) className(id int) string {
	if id == annotation.Unclassified {
		return ""
	}
	return c.classes.NameOf(id)
}

func (c *Codec) fail(op string, err error) {
	c.metrics.RecordOperation(op, metrics.StatusError)
	category := string(errors.CategoryGeneric)
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		category = string(ee.ErrorCategory())
	}
	c.metrics.RecordError(op, category)
}
