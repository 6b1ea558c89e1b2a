// Package store holds the authoritative collection of annotation objects.
//
// The store is owned by a single goroutine (the workspace dispatcher) and is
// not safe for concurrent use. Each mutating call publishes exactly one
// ChangeEvent; consumers run synchronously and in subscription order before
// the call returns.
package store

import (
	"slices"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/events"
	"github.com/tphakala/cedar-go/internal/logger"
)

// Store is an addressable, mutable collection of objects.
type Store struct {
	objects []*annotation.Object
	index   map[uuid.UUID]*annotation.Object

	visible map[uuid.UUID]struct{}

	selected *annotation.Object

	changes   *events.Bus[ChangeEvent]
	selection *events.Bus[SelectionEvent]

	logger logger.Logger
}

// New creates an empty store.
func New(log logger.Logger) *Store {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Store{
		index:     make(map[uuid.UUID]*annotation.Object),
		visible:   make(map[uuid.UUID]struct{}),
		changes:   events.NewBus[ChangeEvent]("store.changes", log),
		selection: events.NewBus[SelectionEvent]("store.selection", log),
		logger:    log,
	}
}

// Subscribe registers fn for change events. The returned function unsubscribes.
func (s *Store) Subscribe(name string, fn func(ChangeEvent)) (func(), error) {
	return s.changes.Subscribe(name, fn)
}

// SubscribeSelection registers fn for selection changes.
func (s *Store) SubscribeSelection(name string, fn func(SelectionEvent)) (func(), error) {
	return s.selection.Subscribe(name, fn)
}

// ChangeStats exposes the change bus counters.
func (s *Store) ChangeStats() events.BusStats {
	return s.changes.GetStats()
}

// Len returns the number of objects.
func (s *Store) Len() int {
	return len(s.objects)
}

// Objects returns a snapshot of all objects in insertion order.
func (s *Store) Objects() []*annotation.Object {
	return slices.Clone(s.objects)
}

// Get returns the object with id.
func (s *Store) Get(id uuid.UUID) (*annotation.Object, bool) {
	obj, ok := s.index[id]
	return obj, ok
}

// Contains reports whether an object with id is in the store.
func (s *Store) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

// AddObjects adds objects. Objects already present are not duplicated, but
// the event still lists everything passed in: consumers must dedupe by
// identity.
func (s *Store) AddObjects(objs ...*annotation.Object) {
	if len(objs) == 0 {
		return
	}
	for _, obj := range objs {
		s.insert(obj)
	}
	s.publish(ChangeEvent{Kind: Added, Affected: slices.Clone(objs)})
}

// RemoveObjects removes objects. Unknown objects are ignored; the event
// lists only what was actually removed.
func (s *Store) RemoveObjects(objs ...*annotation.Object) {
	removed := make([]*annotation.Object, 0, len(objs))
	for _, obj := range objs {
		if s.delete(obj.ID) {
			removed = append(removed, obj)
		}
	}
	if len(removed) == 0 {
		return
	}
	s.publish(ChangeEvent{Kind: Removed, Affected: removed})
}

// ClearAll removes every object.
func (s *Store) ClearAll() {
	s.objects = nil
	clear(s.index)
	clear(s.visible)
	s.setSelected(nil)
	s.publish(ChangeEvent{Kind: BulkReplaced})
}

// ReplaceAll swaps the whole collection for objs in one change.
func (s *Store) ReplaceAll(objs []*annotation.Object) {
	s.objects = nil
	clear(s.index)
	clear(s.visible)
	for _, obj := range objs {
		s.insert(obj)
	}
	if s.selected != nil && !s.Contains(s.selected.ID) {
		s.setSelected(nil)
	}
	s.publish(ChangeEvent{Kind: BulkReplaced})
}

// Merge removes and adds objects as one change.
func (s *Store) Merge(remove, add []*annotation.Object) {
	for _, obj := range remove {
		s.delete(obj.ID)
	}
	for _, obj := range add {
		s.insert(obj)
	}
	s.publish(ChangeEvent{Kind: BulkReplaced})
}

// ChangeClassification sets the class of obj and publishes a Reclassified event.
func (s *Store) ChangeClassification(obj *annotation.Object, classID int) bool {
	stored, ok := s.index[obj.ID]
	if !ok {
		return false
	}
	stored.ClassID = classID
	s.publish(ChangeEvent{Kind: Reclassified, Affected: []*annotation.Object{stored}, NewClassID: classID})
	return true
}

// Select makes obj the primary selection; nil clears it. Selecting the
// current selection again publishes nothing.
func (s *Store) Select(obj *annotation.Object) {
	if obj != nil && !s.Contains(obj.ID) {
		return
	}
	s.setSelected(obj)
}

// Selected returns the primary selection, or nil.
func (s *Store) Selected() *annotation.Object {
	return s.selected
}

func (s *Store) setSelected(obj *annotation.Object) {
	if sameObject(s.selected, obj) {
		return
	}
	prev := s.selected
	s.selected = obj
	s.selection.Publish(SelectionEvent{Previous: prev, Selected: obj})
}

// ResetVisible makes exactly objs the rendered set. It publishes no change event.
func (s *Store) ResetVisible(objs []*annotation.Object) {
	clear(s.visible)
	for _, obj := range objs {
		if s.Contains(obj.ID) {
			s.visible[obj.ID] = struct{}{}
		}
	}
}

// IsVisible reports whether the object with id is rendered.
func (s *Store) IsVisible(id uuid.UUID) bool {
	_, ok := s.visible[id]
	return ok
}

// VisibleCount returns the size of the rendered set.
func (s *Store) VisibleCount() int {
	return len(s.visible)
}

func (s *Store) insert(obj *annotation.Object) {
	if _, exists := s.index[obj.ID]; exists {
		return
	}
	s.objects = append(s.objects, obj)
	s.index[obj.ID] = obj
	s.visible[obj.ID] = struct{}{}
}

func (s *Store) delete(id uuid.UUID) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	delete(s.visible, id)
	s.objects = slices.DeleteFunc(s.objects, func(o *annotation.Object) bool { return o.ID == id })
	if s.selected != nil && s.selected.ID == id {
		s.setSelected(nil)
	}
	return true
}

func (s *Store) publish(ev ChangeEvent) {
	s.logger.Trace("store change",
		logger.String("kind", ev.Kind.String()),
		logger.Int("affected", len(ev.Affected)),
		logger.Int("objects", len(s.objects)))
	s.changes.Publish(ev)
}

func sameObject(a, b *annotation.Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
