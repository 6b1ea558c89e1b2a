package annotation

import (
	"fmt"
	"strings"

	"github.com/tphakala/cedar-go/internal/errors"
)

// Style records how an annotation came to be and whether a human has looked at it.
type Style string

const (
	// StyleManual is a human-drawn annotation.
	StyleManual Style = "manual"
	// StyleAuto is a machine-generated annotation nobody has reviewed.
	StyleAuto Style = "auto"
	// StyleAutoChecked is a machine-generated annotation confirmed during review.
	StyleAutoChecked Style = "auto_checked"
	// StyleAutoEdited is a machine-generated annotation whose class or metadata was changed by hand.
	StyleAutoEdited Style = "auto_edited"
)

// Styles lists every style in display order.
var Styles = []Style{StyleManual, StyleAuto, StyleAutoChecked, StyleAutoEdited}

// ParseStyle parses a style name case-insensitively.
func ParseStyle(s string) (Style, error) {
	candidate := Style(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Styles {
		if candidate == st {
			return st, nil
		}
	}
	return "", errors.New(fmt.Errorf("unknown annotation style %q", s)).
		Component("annotation").
		Category(errors.CategoryValidation).
		Context("style", s).
		Build()
}

// AfterEdit returns the style a record takes after an interactive class or
// metadata edit: anything machine-generated becomes auto_edited.
func (s Style) AfterEdit() Style {
	if s == StyleManual {
		return StyleManual
	}
	return StyleAutoEdited
}

// AfterReview returns the style after the review walkthrough visits the
// record. Only unreviewed machine annotations change.
func (s Style) AfterReview() Style {
	if s == StyleAuto {
		return StyleAutoChecked
	}
	return s
}

func (s Style) String() string {
	return string(s)
}
