package codec

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

const annotationFilePermissions = 0o644

// Save writes annotations to path as GeoJSON. An existing file is first
// renamed to path+".bak", replacing an older backup. The new content goes
// through a temporary file in the same directory; if that fails the
// backup is moved back to path.
func (c *Codec) Save(path string, anns []*annotation.Annotation) error {
	start := time.Now()
	if FormatOf(path) != FormatGeoJSON {
		return errors.Newf("annotations are saved as %s only: %s", ExtGeoJSON, path).
			Component("codec").
			Category(errors.CategoryValidation).
			Build()
	}

	data, err := c.EncodeGeoJSON(anns)
	if err != nil {
		c.fail(metrics.OpSave, err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.fail(metrics.OpSave, err)
		return errors.FileError(err, path)
	}

	backedUp, err := c.backup(path)
	if err != nil {
		c.fail(metrics.OpBackup, err)
		return err
	}

	if err := writeFileAtomic(path, data); err != nil {
		c.fail(metrics.OpSave, err)
		if backedUp {
			if restoreErr := os.Rename(path+BackupSuffix, path); restoreErr != nil {
				c.log.Error("restoring annotation backup failed",
					logger.String("path", path),
					logger.Error(restoreErr))
				return errors.Join(errors.FileError(err, path), errors.FileError(restoreErr, path+BackupSuffix))
			}
			c.log.Warn("annotation save failed, previous file restored",
				logger.String("path", path),
				logger.Error(err))
		}
		return errors.FileError(err, path)
	}

	c.metrics.RecordOperation(metrics.OpSave, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpSave, time.Since(start).Seconds())
	c.log.Info("annotations saved",
		logger.String("path", path),
		logger.Int("count", len(anns)),
		logger.Bool("backup", backedUp))
	return nil
}

// backup renames path to path+".bak". It reports false when there was
// nothing to back up.
func (c *Codec) backup(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, errors.FileError(err, path)
	}

	backupPath := path + BackupSuffix
	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, errors.FileError(err, backupPath)
	}
	if err := os.Rename(path, backupPath); err != nil {
		return false, errors.FileError(err, path)
	}
	c.metrics.RecordOperation(metrics.OpBackup, metrics.StatusSuccess)
	c.log.Debug("annotation backup created", logger.String("path", backupPath))
	return true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, annotationFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
