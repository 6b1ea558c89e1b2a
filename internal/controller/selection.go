package controller

import (
	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/store"
)

// SelectRow selects the visible row i in the view and mirrors it into the
// store. An out-of-range row clears the selection.
func (c *Controller) SelectRow(i int) {
	rec, _ := c.view.VisibleAt(i)
	c.selectRecord(rec)
}

// SelectID selects the record with id.
func (c *Controller) SelectID(id uuid.UUID) error {
	rec, ok := c.view.Get(id)
	if !ok {
		return notFound(id)
	}
	c.selectRecord(rec)
	return nil
}

func (c *Controller) selectRecord(rec *annotation.Annotation) {
	if c.syncingSelection {
		return
	}
	c.view.Select(rec)

	var obj *annotation.Object
	if rec != nil {
		obj = rec.Object
	}
	if sameID(c.store.Selected(), obj) {
		return
	}
	c.syncingSelection = true
	defer func() { c.syncingSelection = false }()
	c.store.Select(obj)
	c.observe(metrics.OpSelection, "view")
}

func (c *Controller) onStoreSelection(ev store.SelectionEvent) {
	if c.syncingSelection {
		return
	}
	var rec *annotation.Annotation
	if ev.Selected != nil {
		rec, _ = c.view.Get(ev.Selected.ID)
	}
	if current := c.view.Selected(); current == rec || (current != nil && rec != nil && current.ID() == rec.ID()) {
		return
	}
	c.syncingSelection = true
	defer func() { c.syncingSelection = false }()
	c.view.Select(rec)
	c.observe(metrics.OpSelection, "store")
}

func sameID(a, b *annotation.Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
