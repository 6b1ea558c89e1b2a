package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding maps an environment variable onto a config key.
type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional
}

// getEnvBindings returns all environment variable bindings.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "CEDAR_DEBUG", validateEnvBool},
		{"main.workdir", "CEDAR_WORKDIR", nil},

		{"classes.file", "CEDAR_CLASSES_FILE", nil},
		{"classes.watch", "CEDAR_CLASSES_WATCH", validateEnvBool},

		{"audit.enabled", "CEDAR_AUDIT_ENABLED", validateEnvBool},
		{"audit.file", "CEDAR_AUDIT_FILE", nil},
		{"audit.threshold", "CEDAR_AUDIT_THRESHOLD", validateEnvThreshold},
		{"audit.db.enabled", "CEDAR_AUDIT_DB_ENABLED", validateEnvBool},
		{"audit.db.driver", "CEDAR_AUDIT_DB_DRIVER", validateEnvDriver},
		{"audit.db.path", "CEDAR_AUDIT_DB_PATH", nil},
		{"audit.db.host", "CEDAR_AUDIT_DB_HOST", nil},
		{"audit.db.password", "CEDAR_AUDIT_DB_PASSWORD", nil},

		{"review.interval", "CEDAR_REVIEW_INTERVAL", validateEnvDuration},
		{"review.autoassign", "CEDAR_REVIEW_AUTOASSIGN", validateEnvBool},

		{"inference.enabled", "CEDAR_INFERENCE_ENABLED", validateEnvBool},
		{"inference.endpoint", "CEDAR_INFERENCE_ENDPOINT", validateEnvURL},
		{"inference.model", "CEDAR_INFERENCE_MODEL", nil},

		{"logging.default_level", "CEDAR_LOG_LEVEL", validateEnvLogLevel},

		{"metrics.enabled", "CEDAR_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "CEDAR_METRICS_LISTEN", validateEnvListen},
	}
}

// bindEnvVars binds every environment variable on v and validates the ones
// that are set. All problems are reported together.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDriver(value string) error {
	if !isValidDriver(value) {
		return fmt.Errorf("must be one of: %s", strings.Join(validDrivers, ", "))
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !isValidLogLevel(value) {
		return fmt.Errorf("must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}
