// Package logger is the structured, module-aware logging used across
// cedar-go, built on log/slog.
//
// Every component receives a Logger through its constructor and scopes it
// with Module ("store", "controller", "audit", ...). Nothing in the
// repository logs through a package-level logger.
//
//	central, err := logger.NewCentralLogger(&settings.Logging)
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("codec")
//	log.Info("annotations saved",
//	    logger.String("path", path),
//	    logger.Int("count", n))
//
// Console output is human-readable text; log files are JSON. A module can
// be given its own level and file in LoggingConfig.Modules; a logger such as
// "cedar.audit.db" follows the innermost configured name, here "audit".
package logger

import "time"

// Logger is the logging interface handed to every component.
type Logger interface {
	// Module returns a logger for a sub-module, named parent.name.
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every record.
	With(fields ...Field) Logger
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates a 64-bit integer field, used for audit ids and versions.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float field. Values are rounded to three decimals on output.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an "error" field holding err's message.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field, rendered rounded to the millisecond.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with an arbitrary JSON-serializable value.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
