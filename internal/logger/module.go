package logger

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const moduleKey = "module"

// moduleLogger writes records for one module straight to a slog.Handler.
// Fields added with With are converted once and shared by copies. Loggers
// handed out by a CentralLogger re-resolve their route on every Module call.
type moduleLogger struct {
	module  string
	handler slog.Handler
	level   slog.Level
	attrs   []slog.Attr
	router  *CentralLogger
}

func newModuleLogger(module string, handler slog.Handler, level slog.Level) *moduleLogger {
	return &moduleLogger{module: module, handler: handler, level: level}
}

func (m *moduleLogger) Module(name string) Logger {
	child := *m
	if m.module != "" {
		child.module = m.module + "." + name
	} else {
		child.module = name
	}
	if m.router != nil {
		child.handler, child.level = m.router.route(child.module)
	}
	return &child
}

func (m *moduleLogger) With(fields ...Field) Logger {
	child := *m
	child.attrs = make([]slog.Attr, 0, len(m.attrs)+len(fields))
	child.attrs = append(child.attrs, m.attrs...)
	for _, f := range fields {
		child.attrs = append(child.attrs, toAttr(f))
	}
	return &child
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(LevelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if level < m.level {
		return
	}
	ctx := context.Background()
	if !m.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if m.module != "" {
		r.AddAttrs(slog.String(moduleKey, m.module))
	}
	r.AddAttrs(m.attrs...)
	for _, f := range fields {
		r.AddAttrs(toAttr(f))
	}
	_ = m.handler.Handle(ctx, r)
}

func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
