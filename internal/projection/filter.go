package projection

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
)

// Field selects which attribute the text filter matches against.
type Field int

const (
	FieldClassName Field = iota
	FieldClassID
	FieldMetadata
	FieldStyle
)

var fieldNames = map[Field]string{
	FieldClassName: "class_name",
	FieldClassID:   "class_id",
	FieldMetadata:  "metadata",
	FieldStyle:     "style",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseField accepts the names printed by Field.String.
func ParseField(s string) (Field, error) {
	for f, name := range fieldNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, errors.Newf("unknown filter field %q", s).
		Component("projection").
		Category(errors.CategoryValidation).
		Context("fields", "class_name, class_id, metadata, style").
		Build()
}

// Filter combines a free-text predicate on one field with a class-set
// predicate. Empty parts match everything; the parts combine with AND.
type Filter struct {
	Field Field
	Text  string
	// Classes holds the checked class names. Empty means all classes.
	Classes []string
}

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Text) == "" && len(f.Classes) == 0
}

// matcher is a compiled Filter.
type matcher struct {
	field   Field
	text    string
	classID int
	numeric bool
	classes map[string]struct{}
	fold    cases.Caser
}

func compile(f Filter) *matcher {
	m := &matcher{
		field: f.Field,
		fold:  cases.Fold(),
	}
	text := strings.TrimSpace(f.Text)
	if text != "" {
		m.text = m.fold.String(text)
		if id, err := strconv.Atoi(text); err == nil {
			m.classID = id
			m.numeric = true
		}
	}
	if len(f.Classes) > 0 {
		m.classes = make(map[string]struct{}, len(f.Classes))
		for _, name := range f.Classes {
			m.classes[name] = struct{}{}
		}
	}
	return m
}

func (m *matcher) match(a *annotation.Annotation) bool {
	if m.classes != nil {
		if _, ok := m.classes[a.ClassName]; !ok {
			return false
		}
	}
	if m.text == "" {
		return true
	}

	switch m.field {
	case FieldClassID:
		// Numeric text matches the id exactly; anything else falls back
		// to a class-name substring match.
		if m.numeric {
			return a.ClassID == m.classID
		}
		return m.contains(a.ClassName)
	case FieldMetadata:
		return m.contains(a.Metadata)
	case FieldStyle:
		return m.contains(string(a.Style))
	default:
		return m.contains(a.ClassName)
	}
}

func (m *matcher) contains(s string) bool {
	return strings.Contains(m.fold.String(s), m.text)
}
