package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/errors"
)

func TestDBSinkMirrorsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := OpenDBSink(DBConfig{Driver: DriverSQLite, Path: path}, nil)
	require.NoError(t, err)

	l := New(t.Context(), Config{}, nil, nil, sink)
	require.NoError(t, l.Record("Change class", "class_id", "2", "0"))
	require.NoError(t, l.Record("Change metadata", "metadata", "ok", ""))
	require.NoError(t, l.Flush(t.Context()))

	entries := l.Buffered()
	assert.Empty(t, entries)

	n, err := sink.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// A retried batch is ignored rather than rejected.
	require.NoError(t, sink.Write(t.Context(), []Entry{{ID: 1, Action: "Change class"}}))
	n, err = sink.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, l.Close(t.Context()))

	reopened, err := OpenDBSink(DBConfig{Driver: DriverSQLite, Path: path}, nil)
	require.NoError(t, err)
	maxID, err := reopened.MaxID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxID)
	require.NoError(t, reopened.Close())
}

func TestOpenDBSinkRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenDBSink(DBConfig{Driver: "postgres"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = OpenDBSink(DBConfig{Driver: DriverSQLite}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
