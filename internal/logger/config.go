package logger

// LoggingConfig is the logging section of config.yaml.
type LoggingConfig struct {
	DefaultLevel string                  `yaml:"default_level" mapstructure:"default_level"`
	Timezone     string                  `yaml:"timezone" mapstructure:"timezone"` // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput          `yaml:"console" mapstructure:"console"`
	FileOutput   *FileOutput             `yaml:"file_output" mapstructure:"file_output"`
	Modules      map[string]ModuleOutput `yaml:"modules,omitempty" mapstructure:"modules"`
}

// ConsoleOutput is text on stderr, so command output on stdout stays clean.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// FileOutput is the main JSON log file.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// ModuleOutput overrides the level of one module and everything below it.
// With File set the module writes there instead of the main outputs;
// Console keeps it on the console as well.
type ModuleOutput struct {
	Level   string `yaml:"level" mapstructure:"level"`
	File    string `yaml:"file,omitempty" mapstructure:"file"`
	Console bool   `yaml:"console,omitempty" mapstructure:"console"`
}
