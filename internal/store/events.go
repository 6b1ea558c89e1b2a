package store

import (
	"github.com/tphakala/cedar-go/internal/annotation"
)

// EventKind identifies what a ChangeEvent describes.
type EventKind int

const (
	// Added reports objects handed to AddObjects.
	Added EventKind = iota
	// Removed reports objects removed by RemoveObjects.
	Removed
	// BulkReplaced reports a change too large to enumerate; consumers reconcile against Objects().
	BulkReplaced
	// Reclassified reports a ChangeClassification call.
	Reclassified
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case BulkReplaced:
		return "bulk_replaced"
	case Reclassified:
		return "reclassified"
	default:
		return "unknown"
	}
}

// ChangeEvent is published once per mutating store call.
type ChangeEvent struct {
	Kind     EventKind
	Affected []*annotation.Object
	// NewClassID is set for Reclassified events.
	NewClassID int
}

// SelectionEvent is published when the primary selection changes.
type SelectionEvent struct {
	Previous *annotation.Object
	Selected *annotation.Object
}
