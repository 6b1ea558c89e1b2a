// Package audit records user and system actions in a batched, append-only
// log. Entries are buffered in memory and written to every configured Sink
// when the buffer reaches its threshold and on Close.
package audit

import (
	"strconv"
	"sync/atomic"
	"time"
)

// TimestampLayout is the wall-clock format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the column order used by every sink.
var Header = []string{
	"id", "action", "start_time_ms", "end_time_ms", "duration_ms",
	"property_name", "new_value", "old_value", "timestamp",
}

// Entry is one completed action.
type Entry struct {
	ID           int64
	Action       string
	StartTime    time.Time
	EndTime      time.Time
	PropertyName string
	NewValue     string
	OldValue     string
	Timestamp    time.Time
}

// Duration is EndTime minus StartTime.
func (e Entry) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Row renders the entry in Header order.
func (e Entry) Row() []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.Action,
		strconv.FormatInt(e.StartTime.UnixMilli(), 10),
		strconv.FormatInt(e.EndTime.UnixMilli(), 10),
		strconv.FormatInt(e.Duration().Milliseconds(), 10),
		e.PropertyName,
		e.NewValue,
		e.OldValue,
		e.Timestamp.Format(TimestampLayout),
	}
}

// Pending is an action that has begun but not completed. It is completed
// at most once.
type Pending struct {
	id        int64
	action    string
	start     time.Time
	completed atomic.Bool
}

// ID returns the id allocated at Begin.
func (p *Pending) ID() int64 { return p.id }

// Action returns the action name.
func (p *Pending) Action() string { return p.action }
