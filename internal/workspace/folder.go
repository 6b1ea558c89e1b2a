package workspace

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// Open switches to the dataset in folder, which must contain images/ and
// annotations/ subfolders. Pending changes for the current image are saved
// first. It returns the visible image files sorted by name.
func (w *Workspace) Open(ctx context.Context, folder string) ([]string, error) {
	for _, sub := range []string{ImagesDir, AnnotationsDir} {
		dir := filepath.Join(folder, sub)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, errors.NotFoundError(sub+" folder", dir)
		}
	}
	images, err := listImages(filepath.Join(folder, ImagesDir))
	if err != nil {
		return nil, err
	}

	err = w.dispatcher.Do(ctx, func() error {
		if err := w.save(); err != nil {
			return err
		}
		w.walkthrough.Stop()
		w.ctrl.Reset()

		w.mu.Lock()
		w.folder = folder
		w.images = images
		w.image = ""
		w.generation = uuid.New()
		w.loaded = false
		w.inferAvailable = false
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("folder opened",
		logger.String("folder", folder),
		logger.Int("images", len(images)))
	return slices.Clone(images), nil
}

// listImages returns the names of the non-hidden regular files in dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.FileError(err, dir)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Images returns the image files of the open folder.
func (w *Workspace) Images() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.images)
}

// Image returns the selected image, or "" when none is selected.
func (w *Workspace) Image() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.image
}

// InferAvailable reports whether whole-image inference may run for the
// selected image: true when it had no annotation file.
func (w *Workspace) InferAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inferAvailable
}

func (w *Workspace) imagesDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filepath.Join(w.folder, ImagesDir)
}

func (w *Workspace) annotationsDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filepath.Join(w.folder, AnnotationsDir)
}

// SelectImage saves pending changes, clears the view and loads the
// annotations for name in the background. The returned channel receives
// the outcome once: nil when the annotations were applied, ErrStaleResult
// when another image was selected first, or the load error. A missing
// annotation file is not an error; the view stays empty and
// InferAvailable reports true. When the load fails the image is
// deselected, so nothing can overwrite its file. ctx bounds the switch
// only; the load itself runs until it finishes or the workspace closes.
func (w *Workspace) SelectImage(ctx context.Context, name string) (<-chan error, error) {
	w.mu.Lock()
	folder, known := w.folder, slices.Contains(w.images, name)
	w.mu.Unlock()
	if folder == "" {
		return nil, stateError("no folder is open")
	}
	if !known {
		return nil, errors.NotFoundError("image", filepath.Join(folder, ImagesDir, name))
	}

	var gen uuid.UUID
	err := w.dispatcher.Do(ctx, func() error {
		if err := w.save(); err != nil {
			return err
		}
		w.walkthrough.Stop()
		w.ctrl.Reset()

		gen = uuid.New()
		w.mu.Lock()
		w.image = name
		w.generation = gen
		w.loaded = false
		w.inferAvailable = false
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	w.goBackground(func(ctx context.Context) {
		done <- w.load(ctx, gen, name)
	})
	return done, nil
}

func (w *Workspace) load(ctx context.Context, gen uuid.UUID, image string) error {
	path, err := codec.Resolve(w.annotationsDir(), image)
	var anns []*annotation.Annotation
	if err == nil {
		anns, err = w.codec.Load(path)
	}
	missing := errors.IsNotFound(err)
	if err != nil && !missing {
		w.log.Error("failed to load annotations",
			logger.String("image", image),
			logger.String("path", path),
			logger.Error(err))
		w.observe(metrics.OpLoad, metrics.StatusError)
		w.unload(ctx, gen)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return w.apply(ctx, gen, metrics.OpLoad, func() {
		if missing {
			w.log.Info("no annotation file for image",
				logger.String("image", image),
				logger.String("path", path))
			w.ctrl.Reset()
		} else {
			w.ctrl.Load(anns, path)
		}
		w.mu.Lock()
		w.loaded = true
		w.inferAvailable = missing
		w.mu.Unlock()
	})
}

// unload deselects the image of generation gen after its annotations
// could not be read. The generation stays, so late results for it are
// still dropped.
func (w *Workspace) unload(ctx context.Context, gen uuid.UUID) {
	err := w.dispatcher.Do(ctx, func() error {
		if !w.isCurrent(gen) {
			return nil
		}
		w.walkthrough.Stop()
		w.ctrl.Reset()
		w.mu.Lock()
		w.image = ""
		w.loaded = false
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		w.log.Debug("image not deselected after failed load", logger.Error(err))
	}
}

// Save writes the selected image's annotations to
// annotations/<stem>.geojson when there are unsaved changes.
func (w *Workspace) Save(ctx context.Context) error {
	return w.dispatcher.Do(ctx, w.save)
}

// save runs on the dispatcher. Nothing is written while the image's
// annotations have not been loaded: the view would only hold the records
// added since, and writing them would replace the file.
func (w *Workspace) save() error {
	w.mu.Lock()
	image, folder, loaded := w.image, w.folder, w.loaded
	w.mu.Unlock()
	if image == "" || !w.ctrl.Dirty() {
		return nil
	}
	if !loaded {
		w.log.Warn("discarding changes made before the annotations were loaded",
			logger.String("image", image))
		return nil
	}

	path := codec.AnnotationPath(filepath.Join(folder, AnnotationsDir), image)
	anns := w.ctrl.Snapshot()
	if err := w.codec.Save(path, anns); err != nil {
		w.log.Error("failed to save annotations",
			logger.String("path", path),
			logger.Error(err))
		return err
	}
	w.ctrl.MarkSaved()

	w.mu.Lock()
	w.inferAvailable = false
	w.mu.Unlock()
	w.log.Info("annotations saved",
		logger.String("path", path),
		logger.Int("records", len(anns)))
	return nil
}

func stateError(msg string) error {
	return errors.Newf("%s", msg).
		Component("workspace").
		Category(errors.CategoryState).
		Build()
}
