// Package app holds the state shared by the cedar-go commands: settings,
// the central logger and the metrics registry.
package app

import (
	"context"

	"github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/conf"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
	"github.com/tphakala/cedar-go/internal/workspace"
)

// Context holds the overall application state for one command run.
type Context struct {
	// ConfigFile is the --config flag; empty searches the default paths.
	ConfigFile string
	// Debug and WorkDir override the loaded settings when set.
	Debug   bool
	WorkDir string

	Settings *conf.Settings
	Log      logger.Logger
	Metrics  *observability.Metrics

	central      *logger.CentralLogger
	endpoint     *observability.Endpoint
	stopEndpoint context.CancelFunc
}

// Init loads settings, creates the logger and metrics and starts the
// metrics endpoint when it is enabled. The endpoint stops with ctx.
func (c *Context) Init(ctx context.Context) error {
	settings, err := conf.Load(c.ConfigFile)
	if err != nil {
		return err
	}
	if c.Debug {
		settings.Debug = true
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}
	if c.WorkDir != "" {
		settings.Main.WorkDir = c.WorkDir
	}
	c.Settings = settings

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c.central = central
	c.Log = central.Module("cedar")
	c.Log.Debug("settings loaded",
		logger.String("config", settings.ConfigPath),
		logger.String("workdir", settings.Main.WorkDir))

	c.Metrics, err = observability.NewMetrics()
	if err != nil {
		return err
	}
	if settings.Metrics.Enabled {
		epCtx, cancel := context.WithCancel(ctx)
		endpoint := observability.NewEndpoint(settings.Metrics.Listen, c.Metrics, c.Log)
		if err := endpoint.Start(epCtx); err != nil {
			cancel()
			return errors.New(err).
				Component("app").
				Category(errors.CategoryNetwork).
				Context("listen", settings.Metrics.Listen).
				Build()
		}
		c.endpoint, c.stopEndpoint = endpoint, cancel
	}
	return nil
}

// OpenWorkspace builds a workspace from the loaded settings. opts.Settings,
// opts.Log and opts.Metrics are filled in.
func (c *Context) OpenWorkspace(ctx context.Context, opts workspace.Options) (*workspace.Workspace, error) {
	if c.Settings == nil {
		return nil, errNotInitialized()
	}
	opts.Settings = c.Settings
	opts.Log = c.Log
	opts.Metrics = c.Metrics
	return workspace.New(ctx, opts)
}

// Classes loads the configured class table, or the bundled one when the
// override file is missing.
func (c *Context) Classes() (*classes.Registry, error) {
	if c.Settings == nil {
		return nil, errNotInitialized()
	}
	registry, err := classes.NewRegistry(c.Log)
	if err != nil {
		return nil, err
	}
	if err := registry.LoadFile(c.Settings.Resolve(c.Settings.Classes.File)); err != nil {
		return nil, err
	}
	return registry, nil
}

// Codec returns a persistence codec using the configured class table.
func (c *Context) Codec() (*codec.Codec, error) {
	registry, err := c.Classes()
	if err != nil {
		return nil, err
	}
	var rec metrics.Recorder
	if c.Metrics != nil {
		rec = c.Metrics.Codec
	}
	return codec.New(registry, c.Log, rec), nil
}

func errNotInitialized() error {
	return errors.Newf("application context is not initialized").
		Component("app").
		Category(errors.CategoryState).
		Build()
}

// Close stops the metrics endpoint and flushes the logger.
func (c *Context) Close() error {
	if c.endpoint != nil {
		c.stopEndpoint()
		c.endpoint.Wait()
		c.endpoint = nil
	}
	if c.central != nil {
		err := c.central.Close()
		c.central = nil
		return err
	}
	return nil
}
