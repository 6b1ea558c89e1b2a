package controller

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/audit"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// SetClassID applies a class id typed into the view. Non-numeric input or
// an id below -1 is rejected without touching the store or the audit log.
func (c *Controller) SetClassID(id uuid.UUID, text string) error {
	classID, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		c.observe(metrics.OpEdit, metrics.StatusError)
		return validationError("class id must be an integer: %q", text)
	}
	if classID < annotation.Unclassified {
		c.observe(metrics.OpEdit, metrics.StatusError)
		return validationError("class id must be %d or greater: %d", annotation.Unclassified, classID)
	}
	return c.changeClass(id, classID, ActionChangeClassID, "class_id")
}

// SetClassName applies a class chosen by name. Unknown names are rejected;
// an empty name clears the class.
func (c *Controller) SetClassName(id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	classID := annotation.Unclassified
	if name != "" {
		classID = c.classes.IDOf(name)
		if classID == annotation.Unclassified {
			c.observe(metrics.OpEdit, metrics.StatusError)
			return validationError("unknown class name %q", name)
		}
	}
	return c.changeClass(id, classID, ActionChangeClassName, "class_name")
}

// changeClass updates the record, pushes the class into the store with the
// echo guard set, and writes exactly one audit entry.
func (c *Controller) changeClass(id uuid.UUID, classID int, action, property string) error {
	rec, ok := c.view.Get(id)
	if !ok {
		return notFound(id)
	}
	if rec.ClassID == classID {
		return nil
	}

	start := time.Now()
	pending := c.beginAudit(action)
	oldID, oldName := rec.ClassID, rec.ClassName

	rec.ClassID = classID
	rec.ClassName = c.className(classID)
	rec.Style = rec.Style.AfterEdit()
	c.withEdit(func() {
		c.store.ChangeClassification(rec.Object, classID)
	})
	c.dirty = true
	c.view.Refresh()
	c.syncVisible()

	if property == "class_name" {
		c.completeAudit(pending, property, rec.ClassName, oldName)
	} else {
		c.completeAudit(pending, property, strconv.Itoa(classID), strconv.Itoa(oldID))
	}
	c.observeEdit(start)
	return nil
}

// SetStyle applies a style chosen in the view. The store does not track
// styles, so only the view changes.
func (c *Controller) SetStyle(id uuid.UUID, text string) error {
	style, err := annotation.ParseStyle(text)
	if err != nil {
		c.observe(metrics.OpEdit, metrics.StatusError)
		return err
	}
	rec, ok := c.view.Get(id)
	if !ok {
		return notFound(id)
	}
	if rec.Style == style {
		return nil
	}

	start := time.Now()
	pending := c.beginAudit(ActionChangeStyle)
	old := rec.Style
	rec.Style = style
	c.dirty = true
	c.view.Refresh()
	c.syncVisible()
	c.completeAudit(pending, "anno_style", style.String(), old.String())
	c.observeEdit(start)
	return nil
}

// SetMetadata replaces the free-text metadata of a record. A machine
// annotation becomes auto_edited.
func (c *Controller) SetMetadata(id uuid.UUID, text string) error {
	rec, ok := c.view.Get(id)
	if !ok {
		return notFound(id)
	}
	if rec.Metadata == text {
		return nil
	}

	start := time.Now()
	pending := c.beginAudit(ActionChangeMetadata)
	old := rec.Metadata
	rec.Metadata = text
	rec.Style = rec.Style.AfterEdit()
	c.dirty = true
	c.view.Refresh()
	c.syncVisible()
	c.completeAudit(pending, "metadata", text, old)
	c.observeEdit(start)
	return nil
}

func (c *Controller) beginAudit(action string) *audit.Pending {
	if c.audit == nil {
		return nil
	}
	return c.audit.Begin(action)
}

func (c *Controller) completeAudit(p *audit.Pending, property, newValue, oldValue string) {
	if p == nil {
		return
	}
	if err := c.audit.Complete(p, property, newValue, oldValue); err != nil {
		c.log.Warn("audit entry dropped",
			logger.String("action", p.Action()),
			logger.Error(err))
	}
}

func (c *Controller) observeEdit(start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordOperation(metrics.OpEdit, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpEdit, time.Since(start).Seconds())
}
