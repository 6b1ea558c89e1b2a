// Package classes holds the class table: the mapping between integer class
// ids, human-readable class names and display colors.
package classes

import (
	"bytes"
	"embed"
	"fmt"
	"image/color"
	"io"
	"os"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

//go:embed data/classes.tsv
var bundled embed.FS

const bundledPath = "data/classes.tsv"

// BundledSource is the source name reported for the embedded default table.
const BundledSource = "bundled"

// table is an immutable snapshot; reloads swap the whole pointer.
type table struct {
	ordered []Class
	byID    map[int]Class
	byName  map[string]int
	source  string
}

func newTable(classes []Class, source string) *table {
	t := &table{
		ordered: slices.Clone(classes),
		byID:    make(map[int]Class, len(classes)),
		byName:  make(map[string]int, len(classes)),
		source:  source,
	}
	slices.SortStableFunc(t.ordered, func(a, b Class) int { return a.ID - b.ID })
	for _, c := range t.ordered {
		t.byID[c.ID] = c
		t.byName[c.Name] = c.ID
	}
	return t
}

// Registry is safe for concurrent use. Lookups never block a reload.
type Registry struct {
	current atomic.Pointer[table]
	version atomic.Uint64
	logger  logger.Logger
}

// NewRegistry returns a registry loaded with the bundled default table.
func NewRegistry(log logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	r := &Registry{logger: log}
	if err := r.loadBundled(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadBundled() error {
	data, err := bundled.ReadFile(bundledPath)
	if err != nil {
		return errors.ConfigError(fmt.Errorf("read bundled class table: %w", err), BundledSource)
	}
	return r.Load(bytes.NewReader(data), BundledSource)
}

// Load replaces the table with the one read from src. On any error the
// previous table stays in effect and a configuration error is returned.
func (r *Registry) Load(src io.Reader, source string) error {
	parsed, err := ParseTable(src)
	if err != nil {
		return errors.New(fmt.Errorf("load class table %s: %w", source, err)).
			Component("classes").
			Category(errors.CategoryConfiguration).
			Context("source", source).
			Build()
	}

	r.current.Store(newTable(parsed, source))
	v := r.version.Add(1)
	r.logger.Info("class table loaded",
		logger.String("source", source),
		logger.Int("classes", len(parsed)),
		logger.Int64("version", int64(v)))
	return nil
}

// LoadFile loads the override table at path. An empty path or a missing
// file selects the bundled default.
func (r *Registry) LoadFile(path string) error {
	if path == "" {
		return r.loadBundled()
	}
	f, err := os.Open(path) //nolint:gosec // class table path comes from settings
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("class table override not found, using bundled table", logger.String("path", path))
			return r.loadBundled()
		}
		return errors.ConfigError(fmt.Errorf("open class table: %w", err), path)
	}
	defer func() { _ = f.Close() }()
	return r.Load(f, path)
}

// IDOf returns the id for name, or annotation.Unclassified (-1) if unknown.
func (r *Registry) IDOf(name string) int {
	if id, ok := r.current.Load().byName[name]; ok {
		return id
	}
	return -1
}

// NameOf returns the name for id. Unknown ids render as their decimal form.
func (r *Registry) NameOf(id int) string {
	if c, ok := r.current.Load().byID[id]; ok {
		return c.Name
	}
	return strconv.Itoa(id)
}

// ColorOf returns the display color for id and whether the id is known.
func (r *Registry) ColorOf(id int) (color.RGBA, bool) {
	c, ok := r.current.Load().byID[id]
	return c.Color, ok
}

// Has reports whether id is defined in the current table.
func (r *Registry) Has(id int) bool {
	_, ok := r.current.Load().byID[id]
	return ok
}

// OrderedNames returns class names ordered by id.
func (r *Registry) OrderedNames() []string {
	t := r.current.Load()
	names := make([]string, len(t.ordered))
	for i, c := range t.ordered {
		names[i] = c.Name
	}
	return names
}

// Classes returns a snapshot of the table ordered by id.
func (r *Registry) Classes() []Class {
	return slices.Clone(r.current.Load().ordered)
}

// Source names where the current table came from.
func (r *Registry) Source() string {
	return r.current.Load().source
}

// Version increases on every successful load. Holders of a derived class
// list compare it with the version they last saw to decide whether to refresh.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}
