package workspace

import (
	"context"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/inference"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// inferenceSource names inference batches in the audit log.
const inferenceSource = "inference"

// Infer requests segmentation of the selected image in the background.
// With a region, the results are added to the view; records already present
// by identity are skipped, so a cached reply is harmless. Without a region
// the whole image is segmented, which is only allowed while InferAvailable
// reports true; the written annotation file becomes the view. The returned
// channel receives the outcome once, ErrStaleResult when the user moved to
// another image first. ctx is only checked before the request starts: a
// caller that stops waiting leaves the request running, and its result is
// applied if the image is still selected.
func (w *Workspace) Infer(ctx context.Context, region *inference.Region) (<-chan error, error) {
	if w.inferrer == nil {
		return nil, errors.Newf("inference is disabled").
			Component("workspace").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	image, gen, loaded, available := w.image, w.generation, w.loaded, w.inferAvailable
	w.mu.Unlock()
	if image == "" {
		return nil, stateError("no image is selected")
	}
	if !loaded {
		return nil, stateError("annotations are still loading")
	}
	if region == nil && !available {
		return nil, stateError("image already has annotations")
	}

	req := inference.Request{
		ImageDir:      w.imagesDir(),
		ImageFile:     image,
		AnnotationDir: w.annotationsDir(),
		Region:        region,
	}
	done := make(chan error, 1)
	w.goBackground(func(ctx context.Context) {
		done <- w.infer(ctx, gen, req)
	})
	return done, nil
}

func (w *Workspace) infer(ctx context.Context, gen uuid.UUID, req inference.Request) error {
	res, err := w.inferrer.Infer(ctx, req)
	if err != nil {
		w.observe(metrics.OpInfer, metrics.StatusError)
		return err
	}

	return w.apply(ctx, gen, metrics.OpInfer, func() {
		if req.Region == nil {
			w.ctrl.Load(res.Annotations, res.Path)
			w.mu.Lock()
			w.loaded = true
			w.inferAvailable = false
			w.mu.Unlock()
			return
		}
		added := w.ctrl.InsertBatch(res.Annotations, inferenceSource)
		w.log.Info("inference results added",
			logger.String("image", req.ImageFile),
			logger.Int("received", len(res.Annotations)),
			logger.Int("added", len(added)),
			logger.Bool("cached", res.Cached))
	})
}
