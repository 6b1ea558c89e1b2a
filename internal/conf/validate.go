package conf

import (
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/tphakala/cedar-go/internal/errors"
)

var (
	validDrivers   = []string{"sqlite", "mysql"}
	validLogLevels = []string{"trace", "debug", "info", "warn", "error"}
)

func isValidDriver(driver string) bool {
	return slices.Contains(validDrivers, driver)
}

func isValidLogLevel(level string) bool {
	return slices.Contains(validLogLevels, level)
}

// ValidationError collects every problem found in a Settings value.
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks settings for values the application cannot run
// with. The returned error is categorised as a validation error and wraps a
// ValidationError.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAuditSettings(&settings.Audit)...)
	ve.Errors = append(ve.Errors, validateReviewSettings(&settings.Review)...)
	ve.Errors = append(ve.Errors, validateInferenceSettings(&settings.Inference)...)
	ve.Errors = append(ve.Errors, validateLoggingSettings(settings)...)
	ve.Errors = append(ve.Errors, validateMetricsSettings(&settings.Metrics)...)

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateAuditSettings(settings *AuditSettings) []string {
	var errs []string
	if settings.Threshold < 1 {
		errs = append(errs, fmt.Sprintf("audit threshold must be at least 1, got %d", settings.Threshold))
	}

	db := settings.DB
	if !db.Enabled {
		return errs
	}
	switch db.Driver {
	case "sqlite":
		if db.Path == "" {
			errs = append(errs, "audit database path is required for sqlite")
		}
	case "mysql":
		if db.Host == "" || db.Database == "" {
			errs = append(errs, "audit database host and database name are required for mysql")
		}
		if db.Port <= 0 || db.Port > 65535 {
			errs = append(errs, fmt.Sprintf("audit database port must be between 1 and 65535, got %d", db.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("audit database driver must be one of %s, got %q",
			strings.Join(validDrivers, ", "), db.Driver))
	}
	return errs
}

func validateReviewSettings(settings *ReviewSettings) []string {
	if settings.Interval <= 0 {
		return []string{fmt.Sprintf("review interval must be positive, got %s", settings.Interval)}
	}
	return nil
}

func validateInferenceSettings(settings *InferenceSettings) []string {
	var errs []string
	if settings.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("inference rate limit must not be negative, got %g", settings.RateLimit))
	}
	if settings.Timeout < 0 || settings.CacheTTL < 0 {
		errs = append(errs, "inference timeout and cache TTL must not be negative")
	}
	if !settings.Enabled {
		return errs
	}
	u, err := url.Parse(settings.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("inference endpoint must be an http(s) URL, got %q", settings.Endpoint))
	}
	return errs
}

func validateLoggingSettings(settings *Settings) []string {
	var errs []string
	check := func(name, level string) {
		if level != "" && !isValidLogLevel(level) {
			errs = append(errs, fmt.Sprintf("%s log level must be one of %s, got %q",
				name, strings.Join(validLogLevels, ", "), level))
		}
	}
	check("default", settings.Logging.DefaultLevel)
	if c := settings.Logging.Console; c != nil {
		check("console", c.Level)
	}
	if f := settings.Logging.FileOutput; f != nil {
		check("file", f.Level)
		if f.Enabled && f.Path == "" {
			errs = append(errs, "log file path is required when file output is enabled")
		}
	}
	for _, name := range slices.Sorted(maps.Keys(settings.Logging.Modules)) {
		check(name+" module", settings.Logging.Modules[name].Level)
	}
	return errs
}

func validateMetricsSettings(settings *MetricsSettings) []string {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return []string{fmt.Sprintf("metrics listen address must be host:port, got %q", settings.Listen)}
	}
	return nil
}
