package workspace

import (
	"context"

	"github.com/tphakala/cedar-go/internal/review"
)

// Status is a point-in-time summary of the workspace.
type Status struct {
	Folder         string
	Image          string
	Images         int
	Records        int
	Visible        int
	Dirty          bool
	InferAvailable bool
	Review         review.State
	ClassesVersion uint64
}

// Status collects a summary on the dispatcher.
func (w *Workspace) Status(ctx context.Context) (Status, error) {
	var st Status
	err := w.dispatcher.Do(ctx, func() error {
		view := w.ctrl.View()
		w.mu.Lock()
		st = Status{
			Folder:         w.folder,
			Image:          w.image,
			Images:         len(w.images),
			InferAvailable: w.inferAvailable,
		}
		w.mu.Unlock()
		st.Records = view.Len()
		st.Visible = view.VisibleLen()
		st.Dirty = w.ctrl.Dirty()
		st.Review = w.walkthrough.State()
		st.ClassesVersion = w.registry.Version()
		return nil
	})
	return st, err
}
