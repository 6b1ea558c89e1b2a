package audit

import (
	"context"
	"encoding/csv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tphakala/cedar-go/internal/errors"
)

// DefaultFileName is the audit file created in the working directory.
const DefaultFileName = "tracking.tsv"

const filePermissions = 0o644

// FileSink appends entries to a tab-delimited file. The header row is
// written only when the file is created.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink returns a sink for path. The file is created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Path returns the file location.
func (s *FileSink) Path() string { return s.path }

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.FileError(err, s.path)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePermissions)
	if err != nil {
		return errors.FileError(err, s.path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errors.FileError(err, s.path)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return errors.FileError(err, s.path)
		}
	}
	for i := range entries {
		if err := w.Write(entries[i].Row()); err != nil {
			_ = f.Close()
			return errors.FileError(err, s.path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return errors.FileError(err, s.path)
	}
	if err := f.Close(); err != nil {
		return errors.FileError(err, s.path)
	}
	return nil
}

// MaxID implements Sink. A missing file yields 0. Rows whose first column
// is not an integer are skipped.
func (s *FileSink) MaxID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.FileError(err, s.path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var maxID int64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return maxID, errors.New(err).
				Component("audit").
				Category(errors.CategoryFileParsing).
				FileContext(s.path).
				Build()
		}
		if len(rec) == 0 {
			continue
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		maxID = max(maxID, id)
	}
	return maxID, nil
}

// Close implements Sink. The file is opened per write, so there is nothing to release.
func (s *FileSink) Close() error { return nil }
