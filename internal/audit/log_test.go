package audit

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memorySink records writes and can be told to fail.
type memorySink struct {
	mu      sync.Mutex
	name    string
	entries []Entry
	writes  int
	fail    bool
	maxID   int64
	closed  bool
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.fail {
		return errors.NewStd("sink unavailable")
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *memorySink) MaxID(context.Context) (int64, error) { return s.maxID, nil }

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *memorySink) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(10 * time.Millisecond)
		return t
	}
}

func TestBeginCompleteAllocatesIDs(t *testing.T) {
	sink := &memorySink{name: "mem", maxID: 41}
	l := New(t.Context(), Config{Threshold: 100, Now: fixedClock()}, nil, nil, sink)

	p1 := l.Begin("Change class")
	p2 := l.Begin("Change metadata")
	assert.Equal(t, int64(42), p1.ID())
	assert.Equal(t, int64(43), p2.ID())

	require.NoError(t, l.Complete(p2, "metadata", "new", "old"))
	require.NoError(t, l.Complete(p1, "class_id", "2", "1"))

	err := l.Complete(p1, "class_id", "3", "2")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	buf := l.Buffered()
	require.Len(t, buf, 2)
	assert.Equal(t, int64(43), buf[0].ID)
	assert.Equal(t, "class_id", buf[1].PropertyName)
	assert.Equal(t, 30*time.Millisecond, buf[1].Duration())

	require.NoError(t, l.Close(t.Context()))
	assert.Len(t, sink.snapshot(), 2)
	assert.True(t, sink.closed)
	assert.Error(t, l.Record("late", "", "", ""), "closed log rejects entries")
}

func TestFlushKeepsEntriesUntilAllSinksAccept(t *testing.T) {
	good := &memorySink{name: "good"}
	bad := &memorySink{name: "bad", fail: true}
	l := New(t.Context(), Config{Threshold: 100}, nil, nil, good, bad)

	require.NoError(t, l.Record("Save", "", "", ""))
	require.NoError(t, l.Record("Load", "", "", ""))

	err := l.Flush(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.Len(t, l.Buffered(), 2, "entries stay buffered")
	assert.Len(t, good.snapshot(), 2)

	require.NoError(t, l.Record("Infer", "", "", ""))
	bad.setFail(false)
	require.NoError(t, l.Flush(t.Context()))

	assert.Empty(t, l.Buffered())
	assert.Len(t, good.snapshot(), 3, "accepted entries are not resent")
	assert.Len(t, bad.snapshot(), 3)

	require.NoError(t, l.Close(t.Context()))
}

func TestThresholdTriggersBackgroundFlush(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metrics.NewAuditMetrics(registry)
	require.NoError(t, err)

	sink := &memorySink{name: "mem"}
	l := New(t.Context(), Config{Threshold: 3}, nil, m, sink)

	for range 3 {
		require.NoError(t, l.Record("Select", "", "", ""))
	}
	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, l.Close(t.Context()))
}

func TestConcurrentCompleteAndFlush(t *testing.T) {
	sink := &memorySink{name: "mem"}
	l := New(t.Context(), Config{Threshold: 10}, nil, nil, sink)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				assert.NoError(t, l.Record("Edit", "metadata", "a", "b"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, l.Close(t.Context()))

	written := sink.snapshot()
	require.Len(t, written, 400)
	seen := make(map[int64]bool, len(written))
	for _, e := range written {
		assert.False(t, seen[e.ID], "id %d written twice", e.ID)
		seen[e.ID] = true
	}
}

func TestFileSinkHeaderOnceAndIDRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", DefaultFileName)

	first := New(t.Context(), Config{}, nil, nil, NewFileSink(path))
	require.NoError(t, first.Record("Load annotations", "file", "a.geojson", ""))
	require.NoError(t, first.Record("Save annotations", "file", "a.geojson", ""))
	require.NoError(t, first.Close(t.Context()))

	second := New(t.Context(), Config{}, nil, nil, NewFileSink(path))
	assert.Equal(t, int64(3), second.NextID(), "ids continue after restart")
	require.NoError(t, second.Record("Change class", "class_id", "2", "-1"))
	require.NoError(t, second.Close(t.Context()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"1", "2", "3"}, []string{rows[1][0], rows[2][0], rows[3][0]})
	assert.Equal(t, "class_id", rows[3][5])
	assert.Len(t, rows[3], len(Header))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "start_time_ms"), "header written once")
}

func TestFileSinkMissingFile(t *testing.T) {
	t.Parallel()

	id, err := NewFileSink(filepath.Join(t.TempDir(), "none.tsv")).MaxID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestEntryRow(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Entry{
		ID:        7,
		Action:    "Change style",
		StartTime: start,
		EndTime:   start.Add(1500 * time.Millisecond),
		Timestamp: start,
	}
	row := e.Row()
	assert.Equal(t, "7", row[0])
	assert.Equal(t, "1500", row[4])
	assert.Equal(t, "2024-01-02 03:04:05", row[8])
}
