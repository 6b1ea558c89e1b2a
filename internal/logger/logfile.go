package logger

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/cedar-go/internal/errors"
)

const (
	logFileMode      = 0o600
	logDirMode       = 0o700
	logBufferSize    = 32 * 1024
	logFlushInterval = 2 * time.Second
)

// logFile is an append-only log file behind a write buffer. A background
// loop flushes the buffer every flushEvery; Close flushes and syncs.
type logFile struct {
	path string

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func openLogFile(path string, flushEvery time.Duration) (*logFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirMode); err != nil {
			return nil, errors.FileError(err, dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // path comes from the config file
	if err != nil {
		return nil, errors.FileError(err, path)
	}

	lf := &logFile{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, logBufferSize),
		stop: make(chan struct{}),
	}
	lf.wg.Go(func() {
		ticker := time.NewTicker(flushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-lf.stop:
				return
			case <-ticker.C:
				_ = lf.flush()
			}
		}
	})
	return lf, nil
}

// Write buffers one encoded record.
func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return 0, errors.Newf("log file %s is closed", lf.path).
			Component("logger").
			Category(errors.CategoryState).
			Build()
	}
	return lf.buf.Write(p)
}

func (lf *logFile) flush() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return nil
	}
	if err := lf.buf.Flush(); err != nil {
		return errors.FileError(err, lf.path)
	}
	return nil
}

// buffered reports the bytes not yet handed to the OS.
func (lf *logFile) buffered() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.buf.Buffered()
}

// Close stops the flush loop, then flushes, syncs and closes the file.
// Calls after the first return nil.
func (lf *logFile) Close() error {
	var err error
	lf.closeOnce.Do(func() {
		close(lf.stop)
		lf.wg.Wait()

		lf.mu.Lock()
		defer lf.mu.Unlock()
		lf.closed = true
		err = errors.Join(lf.buf.Flush(), lf.file.Sync(), lf.file.Close())
	})
	if err != nil {
		return errors.FileError(err, lf.path)
	}
	return nil
}
