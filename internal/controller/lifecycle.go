package controller

import (
	"strconv"
	"strings"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/projection"
)

// Load replaces the store and the view with anns, as read from source. The
// result is clean: nothing needs saving.
func (c *Controller) Load(anns []*annotation.Annotation, source string) {
	objs := objectsOf(anns)
	c.withEdit(func() {
		c.store.ReplaceAll(objs)
	})
	c.view.SetItems(anns)
	c.syncVisible()
	c.dirty = false
	c.recordBatch(ActionLoad, source, len(anns))
	c.log.Info("annotations loaded into view",
		logger.String("source", source),
		logger.Int("records", len(anns)))
}

// recordBatch logs where a batch came from and how many records it held,
// one property per entry.
func (c *Controller) recordBatch(action, source string, n int) {
	c.record(action, "source", source, "")
	c.record(action, "count", strconv.Itoa(n), "")
}

// Reset empties the store and the view without writing an audit entry.
func (c *Controller) Reset() {
	c.withEdit(func() {
		c.store.ClearAll()
	})
	c.view.Clear()
	c.syncVisible()
	c.dirty = false
}

// InsertBatch adds anns that are not present yet, sorted by bounds, to both
// sides. Records already known by identity are skipped, so a repeated
// batch is harmless. It returns the records added.
func (c *Controller) InsertBatch(anns []*annotation.Annotation, source string) []*annotation.Annotation {
	fresh := make([]*annotation.Annotation, 0, len(anns))
	for _, a := range anns {
		if !c.view.Contains(a.ID()) && !c.store.Contains(a.ID()) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	c.withEdit(func() {
		c.store.AddObjects(objectsOf(fresh)...)
	})
	added := c.view.InsertBatch(fresh)
	c.syncVisible()
	c.dirty = true
	c.recordBatch(ActionInsertBatch, source, len(added))
	return added
}

// MarkReviewed promotes the record with the given identity during the
// review walkthrough: auto becomes auto_checked. It reports whether the
// style changed.
func (c *Controller) MarkReviewed(rec *annotation.Annotation) bool {
	if rec == nil || !c.view.Contains(rec.ID()) {
		return false
	}
	next := rec.Style.AfterReview()
	if next == rec.Style {
		return false
	}
	old := rec.Style
	rec.Style = next
	c.dirty = true
	c.view.Refresh()
	c.syncVisible()
	c.record(ActionReview, "anno_style", next.String(), old.String())
	c.observe(metrics.OpReview, metrics.StatusSuccess)
	return true
}

// ApplyFilter replaces the view filter and makes the store render exactly
// the visible records.
func (c *Controller) ApplyFilter(f projection.Filter) {
	old := c.view.Filter()
	c.view.SetFilter(f)
	c.syncVisible()
	c.observe(metrics.OpFilter, metrics.StatusSuccess)
	c.record(ActionFilter, f.Field.String(), describeFilter(f), describeFilter(old))
}

func describeFilter(f projection.Filter) string {
	if f.IsEmpty() {
		return ""
	}
	if len(f.Classes) == 0 {
		return f.Text
	}
	return f.Text + " [" + strings.Join(f.Classes, ", ") + "]"
}

func objectsOf(anns []*annotation.Annotation) []*annotation.Object {
	objs := make([]*annotation.Object, len(anns))
	for i, a := range anns {
		objs[i] = a.Object
	}
	return objs
}
