package audit

import "context"

// Sink is a durable destination for flushed entries.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Write appends entries in order. A failed write may be retried with
	// the same entries.
	Write(ctx context.Context, entries []Entry) error
	// MaxID returns the largest id already persisted, or 0 when empty.
	MaxID(ctx context.Context) (int64, error)
	// Close releases resources.
	Close() error
}
