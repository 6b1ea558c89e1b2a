// Package workspace owns every annotation component for one dataset folder:
// the class table, the store and its projection, the controller, the audit
// log, the review walkthrough and the inference client. Store and
// projection are only touched from the dispatcher goroutine; loading and
// inference run in the background and post their results back.
package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/audit"
	"github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/conf"
	"github.com/tphakala/cedar-go/internal/controller"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/httpclient"
	"github.com/tphakala/cedar-go/internal/inference"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/projection"
	"github.com/tphakala/cedar-go/internal/review"
	"github.com/tphakala/cedar-go/internal/store"
)

// Folder layout of a dataset.
const (
	ImagesDir      = "images"
	AnnotationsDir = "annotations"
)

// ErrStaleResult is delivered for background work that finished after the
// user moved to another image or folder.
var ErrStaleResult = errors.NewStd("result belongs to a previous image")

// Options configures New.
type Options struct {
	Settings *conf.Settings
	Log      logger.Logger
	// Metrics may be nil.
	Metrics *observability.Metrics
	// HTTPClient overrides the client used for inference requests.
	HTTPClient *httpclient.Client
	// NewTicker overrides the walkthrough clock.
	NewTicker func(time.Duration) review.Ticker
	// OnReviewStep is called on the dispatcher after every walkthrough step.
	OnReviewStep func(rec *annotation.Annotation, promoted bool)
}

// Workspace coordinates the components for one dataset folder.
type Workspace struct {
	settings *conf.Settings
	log      logger.Logger
	metrics  *metrics.SyncMetrics

	registry    *classes.Registry
	watcher     *classes.Watcher
	codec       *codec.Codec
	auditLog    *audit.Log
	ctrl        *controller.Controller
	dispatcher  *Dispatcher
	walkthrough *review.Walkthrough
	inferrer    *inference.Client // nil when inference is disabled

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex // guards the fields below
	folder         string
	images         []string
	image          string
	generation     uuid.UUID
	loaded         bool // the view holds the selected image's annotations
	inferAvailable bool
	closed         bool
}

// New builds a workspace from settings. No folder is open yet.
func New(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.Settings == nil {
		return nil, errors.ValidationError("workspace needs settings")
	}
	log := opts.Log
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	settings := opts.Settings

	var (
		syncMetrics  *metrics.SyncMetrics
		auditMetrics *metrics.AuditMetrics
		codecRec     metrics.Recorder
		inferRec     metrics.Recorder
	)
	if m := opts.Metrics; m != nil {
		syncMetrics = m.Sync
		auditMetrics = m.Audit
		codecRec = m.Codec
		inferRec = m.Inference
	}

	registry, err := classes.NewRegistry(log)
	if err != nil {
		return nil, err
	}
	classFile := settings.Resolve(settings.Classes.File)
	if err := registry.LoadFile(classFile); err != nil {
		return nil, err
	}

	sinks, err := openSinks(settings, log)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		settings:   settings,
		log:        log.Module("workspace"),
		metrics:    syncMetrics,
		registry:   registry,
		codec:      codec.New(registry, log, codecRec),
		auditLog:   audit.New(ctx, audit.Config{Threshold: settings.Audit.Threshold}, log, auditMetrics, sinks...),
		dispatcher: NewDispatcher(defaultQueueSize, log),
		ctx:        wctx,
		cancel:     cancel,
		generation: uuid.New(),
	}

	w.ctrl, err = controller.New(store.New(log), projection.New(), registry, w.auditLog, log, syncMetrics)
	if err != nil {
		w.abort(ctx)
		return nil, err
	}

	w.walkthrough = review.New(w.ctrl, func(fn func()) { w.dispatcher.Post(fn) }, review.Options{
		Interval:   settings.Review.Interval,
		AutoAssign: settings.Review.AutoAssign,
		NewTicker:  opts.NewTicker,
		OnStep:     opts.OnReviewStep,
	}, log)

	if settings.Inference.Enabled {
		hc := opts.HTTPClient
		if hc == nil {
			hc = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Inference.Timeout}, log)
		}
		w.inferrer, err = inference.New(inference.Config{
			Endpoint:  settings.Inference.Endpoint,
			Model:     settings.Inference.Model,
			Timeout:   settings.Inference.Timeout,
			CacheTTL:  settings.Inference.CacheTTL,
			RateLimit: settings.Inference.RateLimit,
			Burst:     settings.Inference.Burst,
		}, hc, w.codec, log, inferRec)
		if err != nil {
			w.abort(ctx)
			return nil, err
		}
	}

	if settings.Classes.Watch && classFile != "" {
		w.startWatcher(classFile)
	}

	w.log.Info("workspace ready",
		logger.String("classes", registry.Source()),
		logger.Int("sinks", len(sinks)),
		logger.Bool("inference", w.inferrer != nil),
		logger.Bool("class_watch", w.watcher != nil))
	return w, nil
}

func openSinks(settings *conf.Settings, log logger.Logger) ([]audit.Sink, error) {
	var sinks []audit.Sink
	if settings.Audit.Enabled {
		sinks = append(sinks, audit.NewFileSink(settings.Resolve(settings.Audit.File)))
	}
	if db := settings.Audit.DB; db.Enabled {
		sink, err := audit.OpenDBSink(audit.DBConfig{
			Driver:   db.Driver,
			Path:     settings.Resolve(db.Path),
			Host:     db.Host,
			Port:     db.Port,
			Username: db.Username,
			Password: db.Password,
			Database: db.Database,
		}, log)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// startWatcher keeps the class table in sync with its file. Failing to
// watch is not fatal.
func (w *Workspace) startWatcher(path string) {
	watcher, err := classes.NewWatcher(w.registry, path, w.log)
	if err != nil {
		w.log.Warn("class table watch unavailable", logger.Error(err))
		return
	}
	if err := watcher.Start(w.ctx); err != nil {
		w.log.Warn("class table watch unavailable",
			logger.String("path", path),
			logger.Error(err))
		watcher.Stop()
		return
	}
	w.watcher = watcher
}

// abort releases what New created before failing.
func (w *Workspace) abort(ctx context.Context) {
	w.cancel()
	w.dispatcher.Stop()
	if w.ctrl != nil {
		w.ctrl.Close()
	}
	_ = w.auditLog.Close(ctx)
}

// Close saves pending changes, stops the walkthrough, the class watcher and
// background work, then flushes and closes the audit log.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	var errs []error
	if err := w.Save(ctx); err != nil {
		errs = append(errs, err)
	}

	w.walkthrough.Close()
	if w.watcher != nil {
		w.watcher.Stop()
	}
	w.cancel()
	w.wg.Wait()
	w.dispatcher.Stop()
	w.ctrl.Close()
	if w.inferrer != nil {
		w.inferrer.Close()
	}
	if err := w.auditLog.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	w.log.Info("workspace closed")
	return errors.Join(errs...)
}

// Classes returns the class registry.
func (w *Workspace) Classes() *classes.Registry { return w.registry }

// Walkthrough returns the review walkthrough. Start, Pause and Stop must go
// through StartReview, PauseReview and StopReview.
func (w *Workspace) Walkthrough() *review.Walkthrough { return w.walkthrough }

// Settings returns the settings the workspace was built from.
func (w *Workspace) Settings() *conf.Settings { return w.settings }

// Do runs fn with the controller on the dispatcher and waits for it.
func (w *Workspace) Do(ctx context.Context, fn func(c *controller.Controller) error) error {
	return w.dispatcher.Do(ctx, func() error { return fn(w.ctrl) })
}

// StartReview starts or resumes the walkthrough.
func (w *Workspace) StartReview(ctx context.Context) error {
	return w.dispatcher.Do(ctx, w.walkthrough.Start)
}

// PauseReview pauses the walkthrough.
func (w *Workspace) PauseReview(ctx context.Context) error {
	return w.dispatcher.Do(ctx, func() error {
		w.walkthrough.Pause()
		return nil
	})
}

// StopReview stops the walkthrough and discards its schedule.
func (w *Workspace) StopReview(ctx context.Context) error {
	return w.dispatcher.Do(ctx, func() error {
		w.walkthrough.Stop()
		return nil
	})
}

// goBackground runs fn on a tracked goroutine. Its context ends only when
// the workspace closes; callers that stop waiting do not cancel the work,
// and its result is still applied if the generation is current.
func (w *Workspace) goBackground(fn func(ctx context.Context)) {
	w.wg.Go(func() {
		fn(w.ctx)
	})
}

// apply runs fn on the dispatcher if gen is still the current generation.
func (w *Workspace) apply(ctx context.Context, gen uuid.UUID, op string, fn func()) error {
	return w.dispatcher.Do(ctx, func() error {
		if !w.isCurrent(gen) {
			w.observe(op, metrics.StatusStale)
			w.log.Debug("dropping stale result", logger.String("operation", op))
			return ErrStaleResult
		}
		fn()
		w.observe(op, metrics.StatusSuccess)
		return nil
	})
}

func (w *Workspace) isCurrent(gen uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation == gen
}

func (w *Workspace) observe(op, status string) {
	if w.metrics != nil {
		w.metrics.RecordOperation(op, status)
	}
}
