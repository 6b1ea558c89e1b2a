// Package inference requests machine segmentation of an image, or a
// rectangular region of it, from a remote segmentation service and turns
// the GeoJSON reply into annotations.
package inference

import (
	"math"
	"time"

	"github.com/tphakala/cedar-go/internal/annotation"
)

// DefaultModel is the segmentation model requested when none is configured.
const DefaultModel = "segmentation_tissue"

// Config holds configuration for the inference client.
type Config struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL time.Duration `yaml:"cachettl" mapstructure:"cachettl"`
	// RateLimit is the sustained number of requests per second. Zero
	// disables limiting.
	RateLimit float64 `yaml:"ratelimit" mapstructure:"ratelimit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Model:     DefaultModel,
		Timeout:   5 * time.Minute,
		CacheTTL:  10 * time.Minute,
		RateLimit: 0.5,
		Burst:     1,
	}
}

// Region is a rectangle in image pixel coordinates.
type Region struct {
	X, Y          float64
	Width, Height float64
}

// IsEmpty reports whether the region has no area.
func (r Region) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// origin is the pixel the service crops from; replies are relative to it.
func (r Region) origin() (float64, float64) {
	return math.Floor(r.X), math.Floor(r.Y)
}

// Request describes one inference run.
type Request struct {
	// ImageDir and ImageFile locate the image on the shared file system.
	ImageDir  string
	ImageFile string
	// AnnotationDir is where whole-image results are written.
	AnnotationDir string
	// Region restricts inference to part of the image. Nil means the
	// whole image.
	Region *Region
}

// Result is the outcome of a request.
type Result struct {
	Annotations []*annotation.Annotation
	// Path is the annotation file written for a whole-image request.
	Path string
	// Cached is true when the result came from the response cache.
	Cached bool
}
