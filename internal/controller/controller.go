// Package controller keeps the annotation store and the projection view
// consistent in both directions and records every visible change in the
// audit log.
//
// Store events are mirrored into the view; view edits are pushed into the
// store. While the controller is itself writing to the store it sets
// applyingEdit, and the store event that write causes is ignored. A
// separate guard does the same for selection mirroring. Both guards are
// plain booleans because the store, the view and the controller all
// belong to the dispatcher goroutine.
package controller

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/audit"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/projection"
	"github.com/tphakala/cedar-go/internal/store"
)

// Audit action names.
const (
	ActionChangeClassID    = "Change class id"
	ActionChangeClassName  = "Change class name"
	ActionChangeStyle      = "Change style"
	ActionChangeMetadata   = "Change metadata"
	ActionAddAnnotations   = "Add annotations"
	ActionRemoveAnnotation = "Remove annotations"
	ActionReconcile        = "Reconcile annotations"
	ActionReclassify       = "Reclassify annotation"
	ActionLoad             = "Load annotations"
	ActionInsertBatch      = "Insert annotations"
	ActionReview           = "Review annotation"
	ActionFilter           = "Filter annotations"
)

// ClassLookup resolves class ids and names.
type ClassLookup interface {
	IDOf(name string) int
	NameOf(id int) string
}

// AuditLog is the part of audit.Log the controller writes to.
type AuditLog interface {
	Begin(action string) *audit.Pending
	Complete(p *audit.Pending, property, newValue, oldValue string) error
}

// Controller is the bridge between a store and a view.
type Controller struct {
	store   *store.Store
	view    *projection.View
	classes ClassLookup
	audit   AuditLog
	log     logger.Logger
	metrics *metrics.SyncMetrics

	// applyingEdit is true while the controller writes to the store.
	applyingEdit bool
	// syncingSelection is true while a selection is mirrored to the other side.
	syncingSelection bool
	// dirty is true when the view holds changes not yet saved.
	dirty bool

	unsubscribe []func()
}

// New wires a controller to st and view. m may be nil.
func New(st *store.Store, view *projection.View, classes ClassLookup, auditLog AuditLog, log logger.Logger, m *metrics.SyncMetrics) (*Controller, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	c := &Controller{
		store:   st,
		view:    view,
		classes: classes,
		audit:   auditLog,
		log:     log.Module("controller"),
		metrics: m,
	}

	unsubChanges, err := st.Subscribe("controller", c.onStoreChange)
	if err != nil {
		return nil, err
	}
	unsubSelection, err := st.SubscribeSelection("controller", c.onStoreSelection)
	if err != nil {
		unsubChanges()
		return nil, err
	}
	c.unsubscribe = []func(){unsubChanges, unsubSelection}
	return c, nil
}

// Close detaches the controller from the store.
func (c *Controller) Close() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// Store returns the store the controller mirrors.
func (c *Controller) Store() *store.Store { return c.store }

// View returns the projection the controller maintains.
func (c *Controller) View() *projection.View { return c.view }

// Dirty reports whether there are changes to save.
func (c *Controller) Dirty() bool { return c.dirty }

// MarkSaved clears the dirty flag.
func (c *Controller) MarkSaved() { c.dirty = false }

// Snapshot returns every record in display order, ignoring the filter.
func (c *Controller) Snapshot() []*annotation.Annotation {
	return c.view.Items()
}

func (c *Controller) onStoreChange(ev store.ChangeEvent) {
	if c.applyingEdit {
		c.observe(metrics.OpStoreEvent, metrics.StatusSuppressed)
		return
	}
	c.observe(metrics.OpStoreEvent, ev.Kind.String())

	switch ev.Kind {
	case store.Added:
		c.handleAdded(ev.Affected)
	case store.Removed:
		c.handleRemoved(ev.Affected)
	case store.BulkReplaced:
		c.reconcile()
	case store.Reclassified:
		c.handleReclassified(ev.Affected, ev.NewClassID)
	}
	c.syncVisible()
}

// handleAdded appends a default record for every object the view does not
// know yet. Duplicate notifications for the same object are ignored.
func (c *Controller) handleAdded(objs []*annotation.Object) {
	seen := make(map[uuid.UUID]struct{}, len(objs))
	fresh := make([]*annotation.Annotation, 0, len(objs))
	for _, obj := range objs {
		if _, dup := seen[obj.ID]; dup || c.view.Contains(obj.ID) {
			continue
		}
		seen[obj.ID] = struct{}{}
		fresh = append(fresh, defaultRecord(obj))
	}
	if len(fresh) == 0 {
		c.log.Trace("ignoring duplicate add notification", logger.Int("objects", len(objs)))
		return
	}
	c.view.Append(fresh...)
	c.dirty = true
	c.record(ActionAddAnnotations, "count", strconv.Itoa(len(fresh)), "")
}

func (c *Controller) handleRemoved(objs []*annotation.Object) {
	ids := make(map[uuid.UUID]struct{}, len(objs))
	for _, obj := range objs {
		ids[obj.ID] = struct{}{}
	}
	if n := c.view.Remove(ids); n > 0 {
		c.dirty = true
		c.record(ActionRemoveAnnotation, "count", strconv.Itoa(n), "")
	}
}

// reconcile brings the view in line with the store by identity and logs
// one entry for the whole change.
func (c *Controller) reconcile() {
	current := c.store.Objects()
	inStore := make(map[uuid.UUID]struct{}, len(current))
	for _, obj := range current {
		inStore[obj.ID] = struct{}{}
	}

	toRemove := make(map[uuid.UUID]struct{})
	for _, rec := range c.view.Items() {
		if _, ok := inStore[rec.ID()]; !ok {
			toRemove[rec.ID()] = struct{}{}
		}
	}
	var toAdd []*annotation.Annotation
	for _, obj := range current {
		if !c.view.Contains(obj.ID) {
			toAdd = append(toAdd, defaultRecord(obj))
		}
	}

	removed, added := c.view.ApplyBatch(toRemove, toAdd)
	c.observe(metrics.OpReconcile, metrics.StatusSuccess)
	if removed == 0 && len(added) == 0 {
		return
	}
	c.dirty = true
	c.record(ActionReconcile, "count", fmt.Sprintf("Removed: %d; Added: %d", removed, len(added)), "")
	c.log.Debug("store reconciled",
		logger.Int("removed", removed),
		logger.Int("added", len(added)),
		logger.Int("records", c.view.Len()))
}

func (c *Controller) handleReclassified(objs []*annotation.Object, classID int) {
	for _, obj := range objs {
		rec, ok := c.view.Get(obj.ID)
		if !ok {
			continue
		}
		old := rec.ClassID
		if old == classID {
			continue
		}
		rec.ClassID = classID
		rec.ClassName = c.className(classID)
		rec.Style = rec.Style.AfterEdit()
		c.dirty = true
		c.record(ActionReclassify, "class_id", strconv.Itoa(classID), strconv.Itoa(old))
	}
	c.view.Refresh()
}

// defaultRecord describes an object that appeared in the store without
// going through the view.
func defaultRecord(obj *annotation.Object) *annotation.Annotation {
	return &annotation.Annotation{
		Object:   obj,
		ClassID:  annotation.Unclassified,
		Style:    annotation.StyleManual,
		Metadata: annotation.CreatedExternally,
	}
}

func (c *Controller) className(id int) string {
	if id == annotation.Unclassified {
		return ""
	}
	return c.classes.NameOf(id)
}

// withEdit runs fn with the echo guard set.
func (c *Controller) withEdit(fn func()) {
	c.applyingEdit = true
	defer func() { c.applyingEdit = false }()
	fn()
}

// syncVisible makes the store render exactly the visible records.
func (c *Controller) syncVisible() {
	visible := c.view.Visible()
	objs := make([]*annotation.Object, len(visible))
	for i, rec := range visible {
		objs[i] = rec.Object
	}
	c.store.ResetVisible(objs)
	if c.metrics != nil {
		c.metrics.SetProjectionSize(c.view.Len(), len(visible))
	}
}

func (c *Controller) record(action, property, newValue, oldValue string) {
	c.completeAudit(c.beginAudit(action), property, newValue, oldValue)
}

func (c *Controller) observe(op, status string) {
	if c.metrics != nil {
		c.metrics.RecordOperation(op, status)
	}
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("controller").
		Category(errors.CategoryValidation).
		Build()
}

func notFound(id uuid.UUID) error {
	return errors.Newf("no annotation with id %s", id).
		Component("controller").
		Category(errors.CategoryNotFound).
		Build()
}
