package conf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/errors"
)

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CEDAR_WORKDIR", "/from/env")
	t.Setenv("CEDAR_AUDIT_THRESHOLD", "25")
	t.Setenv("CEDAR_REVIEW_INTERVAL", "750ms")
	t.Setenv("CEDAR_AUDIT_DB_DRIVER", "mysql")
	t.Setenv("CEDAR_LOG_LEVEL", "debug")

	settings, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/from/env", settings.Main.WorkDir)
	assert.Equal(t, 25, settings.Audit.Threshold)
	assert.Equal(t, 750*time.Millisecond, settings.Review.Interval)
	assert.Equal(t, "mysql", settings.Audit.DB.Driver)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
}

func TestInvalidEnvIsReported(t *testing.T) {
	t.Setenv("CEDAR_AUDIT_THRESHOLD", "zero")
	t.Setenv("CEDAR_REVIEW_INTERVAL", "-1s")

	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "CEDAR_AUDIT_THRESHOLD")
	assert.Contains(t, err.Error(), "CEDAR_REVIEW_INTERVAL")
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool ok", validateEnvBool, "true", false},
		{"bool bad", validateEnvBool, "yes", true},
		{"threshold ok", validateEnvThreshold, "1", false},
		{"threshold zero", validateEnvThreshold, "0", true},
		{"driver sqlite", validateEnvDriver, "sqlite", false},
		{"driver postgres", validateEnvDriver, "postgres", true},
		{"duration ok", validateEnvDuration, "2s", false},
		{"duration unitless", validateEnvDuration, "2", true},
		{"url ok", validateEnvURL, "https://infer.example:8443", false},
		{"url no scheme", validateEnvURL, "infer.example", true},
		{"level ok", validateEnvLogLevel, "warn", false},
		{"level bad", validateEnvLogLevel, "verbose", true},
		{"listen ok", validateEnvListen, ":9090", false},
		{"listen bad", validateEnvListen, "9090", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
