package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const (
	dbSlowThreshold = 200 * time.Millisecond
	dbBatchSize     = 100
	dbDialTimeout   = "10s"
)

// DBConfig selects and addresses the mirror database.
type DBConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Path     string `yaml:"path" mapstructure:"path"` // sqlite file
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// entryRecord is the table row for one audit entry.
type entryRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement:false"`
	Action       string `gorm:"size:128;index"`
	StartTimeMs  int64
	EndTimeMs    int64
	DurationMs   int64
	PropertyName string    `gorm:"size:128"`
	NewValue     string    `gorm:"type:text"`
	OldValue     string    `gorm:"type:text"`
	Timestamp    time.Time `gorm:"index"`
}

func (entryRecord) TableName() string { return "audit_entries" }

func toRecord(e *Entry) entryRecord {
	return entryRecord{
		ID:           e.ID,
		Action:       e.Action,
		StartTimeMs:  e.StartTime.UnixMilli(),
		EndTimeMs:    e.EndTime.UnixMilli(),
		DurationMs:   e.Duration().Milliseconds(),
		PropertyName: e.PropertyName,
		NewValue:     e.NewValue,
		OldValue:     e.OldValue,
		Timestamp:    e.Timestamp,
	}
}

// DBSink mirrors flushed entries into a SQL table.
type DBSink struct {
	db     *gorm.DB
	driver string
}

// OpenDBSink connects to the configured database and migrates the audit table.
func OpenDBSink(cfg DBConfig, log logger.Logger) (*DBSink, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	gormCfg := &gorm.Config{Logger: logger.NewGormLogger(log.Module("audit").Module("db"), dbSlowThreshold)}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, errors.ValidationError("audit database path is required for sqlite")
		}
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, errors.FileError(err, cfg.Path)
			}
		}
		dialector = sqlite.Open(fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path))
	case DriverMySQL:
		mc := mysql.Config{
			User:                 cfg.Username,
			Passwd:               cfg.Password,
			Net:                  "tcp",
			Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			DBName:               cfg.Database,
			AllowNativePasswords: true,
			Params: map[string]string{
				"charset":   "utf8mb4",
				"parseTime": "True",
				"loc":       "Local",
				"timeout":   dbDialTimeout,
			},
		}
		dialector = gormmysql.Open(mc.FormatDSN())
	default:
		return nil, errors.Newf("unsupported audit database driver %q", cfg.Driver).
			Component("audit").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, errors.New(err).
			Component("audit").
			Category(errors.CategoryDatabase).
			Context("driver", cfg.Driver).
			Build()
	}
	return newDBSink(db, cfg.Driver)
}

func newDBSink(db *gorm.DB, driver string) (*DBSink, error) {
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, errors.New(err).
			Component("audit").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}
	return &DBSink{db: db, driver: driver}, nil
}

// Name implements Sink.
func (s *DBSink) Name() string { return "db:" + s.driver }

// Write implements Sink. Rows already present are skipped, so a retried
// batch does not fail on duplicate ids.
func (s *DBSink) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]entryRecord, len(entries))
	for i := range entries {
		records[i] = toRecord(&entries[i])
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, dbBatchSize).Error
	if err != nil {
		return errors.New(err).
			Component("audit").
			Category(errors.CategoryDatabase).
			Context("entries", len(entries)).
			Build()
	}
	return nil
}

// MaxID implements Sink.
func (s *DBSink) MaxID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.db.WithContext(ctx).
		Model(&entryRecord{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, errors.New(err).
			Component("audit").
			Category(errors.CategoryDatabase).
			Build()
	}
	return maxID, nil
}

// Count returns the number of mirrored rows.
func (s *DBSink) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&entryRecord{}).Count(&n).Error; err != nil {
		return 0, errors.New(err).Component("audit").Category(errors.CategoryDatabase).Build()
	}
	return n, nil
}

// Close implements Sink.
func (s *DBSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
