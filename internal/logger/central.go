package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "time/tzdata"

	"github.com/tphakala/cedar-go/internal/errors"
)

// CentralLogger owns the configured outputs and hands out module loggers.
// Routing is fixed at construction.
type CentralLogger struct {
	base      slog.Handler
	baseLevel slog.Level
	routes    map[string]route

	mu    sync.Mutex
	files []*logFile
}

type route struct {
	handler slog.Handler
	level   slog.Level
}

// NewCentralLogger opens the outputs described by cfg. Without any enabled
// output, records go to the console at the default level.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.Newf("logging config is nil").
			Component("logger").
			Category(errors.CategoryConfiguration).
			Build()
	}
	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		baseLevel: ParseLevel(cfg.DefaultLevel),
		routes:    make(map[string]route, len(cfg.Modules)),
	}
	levelOr := func(level string) slog.Level {
		if level == "" {
			return cl.baseLevel
		}
		return ParseLevel(level)
	}

	consoleOn := cfg.Console == nil || cfg.Console.Enabled
	var handlers []slog.Handler
	if consoleOn {
		level := cl.baseLevel
		if cfg.Console != nil {
			level = levelOr(cfg.Console.Level)
		}
		handlers = append(handlers, newTextHandler(os.Stderr, level, tz))
	}
	if fo := cfg.FileOutput; fo != nil && fo.Enabled {
		lf, err := cl.open(fo.Path)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, newJSONHandler(lf, levelOr(fo.Level), tz))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, newTextHandler(os.Stderr, cl.baseLevel, tz))
	}
	cl.base = newHandler(handlers...)

	byPath := make(map[string]*logFile)
	for name, mo := range cfg.Modules {
		level := levelOr(mo.Level)
		if mo.File == "" {
			cl.routes[name] = route{handler: cl.base, level: level}
			continue
		}
		lf, ok := byPath[mo.File]
		if !ok {
			if lf, err = cl.open(mo.File); err != nil {
				_ = cl.Close()
				return nil, errors.New(err).Context("module", name).Build()
			}
			byPath[mo.File] = lf
		}
		moduleHandlers := []slog.Handler{newJSONHandler(lf, level, tz)}
		if mo.Console && consoleOn {
			moduleHandlers = append(moduleHandlers, newTextHandler(os.Stderr, level, tz))
		}
		cl.routes[name] = route{handler: newHandler(moduleHandlers...), level: level}
	}
	return cl, nil
}

func (cl *CentralLogger) open(path string) (*logFile, error) {
	lf, err := openLogFile(path, logFlushInterval)
	if err != nil {
		return nil, err
	}
	cl.mu.Lock()
	cl.files = append(cl.files, lf)
	cl.mu.Unlock()
	return lf, nil
}

// Module returns a logger for name.
func (cl *CentralLogger) Module(name string) Logger {
	m := &moduleLogger{module: name, router: cl}
	m.handler, m.level = cl.route(name)
	return m
}

// route picks the innermost segment of a dotted module name that has its
// own configuration, so "cedar.audit.db" follows "audit".
func (cl *CentralLogger) route(module string) (slog.Handler, slog.Level) {
	segments := strings.Split(module, ".")
	for i := len(segments) - 1; i >= 0; i-- {
		if r, ok := cl.routes[segments[i]]; ok {
			return r.handler, r.level
		}
	}
	return cl.base, cl.baseLevel
}

// Close flushes and closes every log file. Loggers keep working afterwards
// but their file records are dropped.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	files := cl.files
	cl.files = nil
	cl.mu.Unlock()

	var errs []error
	for _, lf := range files {
		errs = append(errs, lf.Close())
	}
	return errors.Join(errs...)
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New(err).
			Component("logger").
			Category(errors.CategoryConfiguration).
			Context("timezone", name).
			Build()
	}
	return tz, nil
}

// newJSONHandler writes JSON records with timestamps in tz and the
// console level names.
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Value = slog.TimeValue(a.Value.Time().In(tz))
			case slog.LevelKey:
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(l))
				}
			}
			return a
		},
	})
}

// NewJSONLogger returns a standalone JSON logger on w, used where no
// CentralLogger exists. A nil w writes to stderr.
func NewJSONLogger(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := ParseLevel(level)
	return newModuleLogger("", newJSONHandler(w, lvl, time.UTC), lvl)
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return newModuleLogger("", slog.DiscardHandler, slog.LevelError)
}
