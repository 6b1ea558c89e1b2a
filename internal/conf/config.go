// Package conf loads, validates and saves cedar-go settings.
//
// Settings come from, in increasing priority: built-in defaults, the YAML
// configuration file and CEDAR_* environment variables. Every call to Load
// uses its own viper instance; there is no package-level settings state.
package conf

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// ConfigFileName is the file searched for in the default config paths.
const ConfigFileName = "config.yaml"

// Settings is the complete configuration.
type Settings struct {
	Debug     bool                 `yaml:"debug"`
	Main      MainSettings         `yaml:"main"`
	Classes   ClassesSettings      `yaml:"classes"`
	Audit     AuditSettings        `yaml:"audit"`
	Review    ReviewSettings       `yaml:"review"`
	Inference InferenceSettings    `yaml:"inference"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsSettings      `yaml:"metrics"`

	// ConfigPath is the file the settings were read from; empty when only
	// the built-in defaults were used.
	ConfigPath string `yaml:"-" mapstructure:"-"`
}

// MainSettings contains general settings.
type MainSettings struct {
	WorkDir string `yaml:"workdir"` // folder holding images/ and annotations/
}

// ClassesSettings controls the class table.
type ClassesSettings struct {
	File  string `yaml:"file"`  // override table, relative to the work dir
	Watch bool   `yaml:"watch"` // reload when the file changes
}

// AuditSettings controls the action log.
type AuditSettings struct {
	Enabled   bool            `yaml:"enabled"`
	File      string          `yaml:"file"`      // TSV log, relative to the work dir
	Threshold int             `yaml:"threshold"` // buffered entries before a background flush
	DB        AuditDBSettings `yaml:"db"`
}

// AuditDBSettings configures the optional database mirror of the audit log.
type AuditDBSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file, relative to the work dir
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ReviewSettings controls the review walkthrough.
type ReviewSettings struct {
	Interval   time.Duration `yaml:"interval"`
	AutoAssign bool          `yaml:"autoassign"`
}

// InferenceSettings configures the remote segmentation service.
type InferenceSettings struct {
	Enabled   bool          `yaml:"enabled"`
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cachettl"`
	RateLimit float64       `yaml:"ratelimit"` // requests per second, 0 disables limiting
	Burst     int           `yaml:"burst"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads settings. With an explicit configFile that does not exist, the
// default configuration is written there first. Without one, the default
// config paths are searched and the built-in defaults are used when no file
// is found.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	configPath, err := readConfig(v, configFile)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.ConfigError(err, configPath)
	}
	settings.ConfigPath = configPath

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func readConfig(v *viper.Viper, configFile string) (string, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			if err := createDefaultConfig(configFile); err != nil {
				return "", err
			}
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return "", errors.ConfigError(err, configFile)
		}
		return configFile, nil
	}

	v.SetConfigName("config")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}
	err := v.ReadInConfig()
	if err == nil {
		return v.ConfigFileUsed(), nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return "", errors.ConfigError(err, v.ConfigFileUsed())
	}
	if err := v.ReadConfig(bytes.NewReader(defaultConfig())); err != nil {
		return "", errors.ConfigError(err, "embedded")
	}
	return "", nil
}

// GetDefaultConfigPaths lists the directories searched for config.yaml:
// the current directory, then the user config directory.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "cedar-go"))
	}
	return paths
}

// createDefaultConfig writes the embedded default configuration to path.
func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(err, path)
	}
	if err := os.WriteFile(path, defaultConfig(), 0o644); err != nil {
		return errors.FileError(err, path)
	}
	return nil
}

// defaultConfig returns the embedded config.yaml.
func defaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, ConfigFileName)
	if err != nil {
		// The file is compiled in; failing to read it is a build defect.
		panic(err)
	}
	return data
}

// EncodeYAML renders settings in the config file format.
func EncodeYAML(settings *Settings) ([]byte, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return data, nil
}

// SaveYAMLConfig validates settings and writes them to configPath. It
// overwrites the existing file without preserving comments; the write goes
// through a temporary file that is renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	yamlData, err := EncodeYAML(settings)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.FileError(err, configPath)
	}
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.FileError(err, configPath)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return errors.FileError(err, tempFileName)
	}
	if err := tempFile.Close(); err != nil {
		return errors.FileError(err, tempFileName)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.FileError(err, configPath)
	}
	return nil
}

// Resolve returns path joined to the work dir unless it is absolute or empty.
func (s *Settings) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Main.WorkDir, path)
}
