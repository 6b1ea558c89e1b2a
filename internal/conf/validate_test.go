package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

func validSettings() *Settings {
	return &Settings{
		Main:  MainSettings{WorkDir: "."},
		Audit: AuditSettings{Enabled: true, File: "tracking.tsv", Threshold: 500},
		Review: ReviewSettings{
			Interval: 2 * time.Second,
		},
		Inference: InferenceSettings{Endpoint: "http://127.0.0.1:8000", RateLimit: 0.5, Burst: 1},
		Logging: logger.LoggingConfig{
			DefaultLevel: "info",
			Console:      &logger.ConsoleOutput{Enabled: true, Level: "info"},
		},
		Metrics: MetricsSettings{Listen: "127.0.0.1:9090"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantMsg string
	}{
		{"valid", func(*Settings) {}, ""},
		{"threshold", func(s *Settings) { s.Audit.Threshold = 0 }, "audit threshold"},
		{"unknown driver", func(s *Settings) {
			s.Audit.DB = AuditDBSettings{Enabled: true, Driver: "postgres"}
		}, "driver"},
		{"sqlite without path", func(s *Settings) {
			s.Audit.DB = AuditDBSettings{Enabled: true, Driver: "sqlite"}
		}, "path is required"},
		{"mysql without host", func(s *Settings) {
			s.Audit.DB = AuditDBSettings{Enabled: true, Driver: "mysql", Port: 3306, Database: "cedar"}
		}, "host and database"},
		{"disabled db is not checked", func(s *Settings) {
			s.Audit.DB = AuditDBSettings{Driver: "postgres"}
		}, ""},
		{"interval", func(s *Settings) { s.Review.Interval = 0 }, "review interval"},
		{"negative rate", func(s *Settings) { s.Inference.RateLimit = -1 }, "rate limit"},
		{"bad endpoint", func(s *Settings) {
			s.Inference.Enabled = true
			s.Inference.Endpoint = "127.0.0.1:8000"
		}, "endpoint"},
		{"log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "log level"},
		{"module log level", func(s *Settings) {
			s.Logging.Modules = map[string]logger.ModuleOutput{"audit": {Level: "chatty"}}
		}, "audit module log level"},
		{"metrics listen", func(s *Settings) {
			s.Metrics.Enabled = true
			s.Metrics.Listen = "nowhere"
		}, "metrics listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Audit.Threshold = -1
	s.Review.Interval = -time.Second

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}
