// Package projection is the filtered, sorted, user-facing read model over
// the annotation store. Like the store it belongs to the dispatcher
// goroutine and is not safe for concurrent use.
package projection

import (
	"slices"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
)

// View holds the backing list of records and the visible subset produced
// by the current filter.
type View struct {
	items []*annotation.Annotation
	byID  map[uuid.UUID]*annotation.Annotation

	filter  Filter
	matcher *matcher
	visible []*annotation.Annotation

	selected *annotation.Annotation
}

// New creates an empty view with no filter.
func New() *View {
	return &View{
		byID:    make(map[uuid.UUID]*annotation.Annotation),
		matcher: compile(Filter{}),
	}
}

// Len returns the number of records in the backing list.
func (v *View) Len() int {
	return len(v.items)
}

// Items returns the backing list, filtered or not, in display order.
func (v *View) Items() []*annotation.Annotation {
	return slices.Clone(v.items)
}

// Visible returns the records that pass the filter, in display order.
func (v *View) Visible() []*annotation.Annotation {
	return slices.Clone(v.visible)
}

// VisibleLen returns the number of visible records.
func (v *View) VisibleLen() int {
	return len(v.visible)
}

// VisibleAt returns the visible record at row i.
func (v *View) VisibleAt(i int) (*annotation.Annotation, bool) {
	if i < 0 || i >= len(v.visible) {
		return nil, false
	}
	return v.visible[i], true
}

// VisibleIndex returns the row of the record with id, or -1.
func (v *View) VisibleIndex(id uuid.UUID) int {
	return slices.IndexFunc(v.visible, func(a *annotation.Annotation) bool { return a.ID() == id })
}

// Get returns the record with id.
func (v *View) Get(id uuid.UUID) (*annotation.Annotation, bool) {
	a, ok := v.byID[id]
	return a, ok
}

// Contains reports whether a record for id exists.
func (v *View) Contains(id uuid.UUID) bool {
	_, ok := v.byID[id]
	return ok
}

// SetItems replaces the backing list with anns sorted by bounds.
func (v *View) SetItems(anns []*annotation.Annotation) {
	v.items = SortByBounds(anns)
	clear(v.byID)
	for _, a := range v.items {
		v.byID[a.ID()] = a
	}
	if v.selected != nil && !v.Contains(v.selected.ID()) {
		v.selected = nil
	}
	v.refilter()
}

// Append adds records at the end in the given order, skipping identities
// already present. It returns the records actually added.
func (v *View) Append(anns ...*annotation.Annotation) []*annotation.Annotation {
	added := make([]*annotation.Annotation, 0, len(anns))
	for _, a := range anns {
		if v.Contains(a.ID()) {
			continue
		}
		v.items = append(v.items, a)
		v.byID[a.ID()] = a
		added = append(added, a)
	}
	if len(added) > 0 {
		v.refilter()
	}
	return added
}

// InsertBatch sorts a batch by bounds and appends it.
func (v *View) InsertBatch(anns []*annotation.Annotation) []*annotation.Annotation {
	return v.Append(SortByBounds(anns)...)
}

// Remove drops the records whose identity is in ids and returns how many were removed.
func (v *View) Remove(ids map[uuid.UUID]struct{}) int {
	before := len(v.items)
	v.items = slices.DeleteFunc(v.items, func(a *annotation.Annotation) bool {
		_, drop := ids[a.ID()]
		return drop
	})
	removed := before - len(v.items)
	if removed == 0 {
		return 0
	}
	for id := range ids {
		delete(v.byID, id)
	}
	if v.selected != nil && !v.Contains(v.selected.ID()) {
		v.selected = nil
	}
	v.refilter()
	return removed
}

// ApplyBatch removes the records in remove and appends add (sorted by
// bounds, skipping identities already present) with a single refilter.
func (v *View) ApplyBatch(remove map[uuid.UUID]struct{}, add []*annotation.Annotation) (removed int, added []*annotation.Annotation) {
	before := len(v.items)
	if len(remove) > 0 {
		v.items = slices.DeleteFunc(v.items, func(a *annotation.Annotation) bool {
			_, drop := remove[a.ID()]
			return drop
		})
		for id := range remove {
			delete(v.byID, id)
		}
		if v.selected != nil && !v.Contains(v.selected.ID()) {
			v.selected = nil
		}
	}
	removed = before - len(v.items)

	added = make([]*annotation.Annotation, 0, len(add))
	for _, a := range SortByBounds(add) {
		if v.Contains(a.ID()) {
			continue
		}
		v.items = append(v.items, a)
		v.byID[a.ID()] = a
		added = append(added, a)
	}
	if removed > 0 || len(added) > 0 {
		v.refilter()
	}
	return removed, added
}

// Clear empties the view. The filter is kept.
func (v *View) Clear() {
	v.SetItems(nil)
}

// Filter returns the current filter.
func (v *View) Filter() Filter {
	return v.filter
}

// SetFilter replaces the filter and recomputes the visible rows.
func (v *View) SetFilter(f Filter) {
	v.filter = f
	v.matcher = compile(f)
	v.refilter()
}

// Refresh recomputes the visible rows after records were edited in place.
func (v *View) Refresh() {
	v.refilter()
}

func (v *View) refilter() {
	v.visible = v.visible[:0]
	for _, a := range v.items {
		if v.matcher.match(a) {
			v.visible = append(v.visible, a)
		}
	}
}

// Select sets the selected record; nil clears it. Records outside the view are ignored.
func (v *View) Select(a *annotation.Annotation) {
	if a != nil && !v.Contains(a.ID()) {
		return
	}
	v.selected = a
}

// Selected returns the selected record, or nil.
func (v *View) Selected() *annotation.Annotation {
	return v.selected
}

// SelectedRow returns the visible row of the selection, or -1.
func (v *View) SelectedRow() int {
	if v.selected == nil {
		return -1
	}
	return v.VisibleIndex(v.selected.ID())
}
