package logger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/cedar-go/internal/errors"
)

// gormLogger routes GORM output to a Logger. Statements go out at TRACE;
// failed and slow statements at WARN. LogMode narrows what is reported the
// way GORM's own logger does.
type gormLogger struct {
	log  Logger
	slow time.Duration
	mode gormlogger.LogLevel
}

// NewGormLogger returns a GORM logger writing to log. Statements slower
// than slow are reported; 0 disables the check.
func NewGormLogger(log Logger, slow time.Duration) gormlogger.Interface {
	if log == nil {
		log = NewDiscardLogger()
	}
	return &gormLogger{log: log, slow: slow, mode: gormlogger.Info}
}

func (g *gormLogger) LogMode(mode gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.mode = mode
	return &clone
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Info {
		g.log.Debug(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Warn {
		g.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Error {
		g.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.mode <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed > g.slow

	switch {
	case failed && g.mode >= gormlogger.Error:
		sql, rows := fc()
		g.log.Warn("statement failed",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed), Error(err))
	case slow && g.mode >= gormlogger.Warn:
		sql, rows := fc()
		g.log.Warn("slow statement",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed), Duration("threshold", g.slow))
	case g.mode >= gormlogger.Info:
		sql, rows := fc()
		g.log.Trace("statement",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed))
	}
}
