package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"zugferd/internal/logger"
	"zugferd/internal/mustang"
	"zugferd/internal/preferences"
)

// FileEnv names the optional configuration file (YAML, JSON or TOML).
// Environment variables override its values.
const FileEnv = "ZUGFERD_CONFIG"

type Config struct {
	// Storage; empty means the platform default
	DataDir string `mapstructure:"DATA_DIR"`

	// External tools
	MustangCommand  string        `mapstructure:"MUSTANG_COMMAND"`
	GhostscriptPath string        `mapstructure:"GHOSTSCRIPT_PATH"`
	DefaultProfile  string        `mapstructure:"DEFAULT_PROFILE"`
	BatchWorkers    int           `mapstructure:"BATCH_WORKERS"`
	Timeout         time.Duration `mapstructure:"TIMEOUT"`

	// Google Cloud Configuration
	GoogleCloudProject         string `mapstructure:"GOOGLE_CLOUD_PROJECT"`
	GoogleCloudLocation        string `mapstructure:"GOOGLE_CLOUD_LOCATION"`
	DocumentAIProcessorID      string `mapstructure:"DOCUMENT_AI_PROCESSOR_ID"`
	DocumentAIProcessorVersion string `mapstructure:"DOCUMENT_AI_PROCESSOR_VERSION"`
	GoogleCredentials          string `mapstructure:"GOOGLE_CREDENTIALS"`
	GoogleCredentialsFile      string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Google Sheets Configuration
	GoogleSheetURL string `mapstructure:"GOOGLE_SHEET_URL"`

	// Logging Configuration
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	LogTimeFormat string `mapstructure:"LOG_TIME_FORMAT"`
	LogOutput     string `mapstructure:"LOG_OUTPUT"`
}

var defaults = map[string]interface{}{
	"DATA_DIR":                       "",
	"MUSTANG_COMMAND":                mustang.DefaultCommand,
	"GHOSTSCRIPT_PATH":               "gs",
	"DEFAULT_PROFILE":                preferences.DefaultProfile,
	"BATCH_WORKERS":                  4,
	"TIMEOUT":                        "2m",
	"GOOGLE_CLOUD_PROJECT":           "",
	"GOOGLE_CLOUD_LOCATION":          "eu",
	"DOCUMENT_AI_PROCESSOR_ID":       "",
	"DOCUMENT_AI_PROCESSOR_VERSION":  "",
	"GOOGLE_CREDENTIALS":             "",
	"GOOGLE_APPLICATION_CREDENTIALS": "",
	"GOOGLE_SHEET_URL":               "",
	"LOG_LEVEL":                      "warn",
	"LOG_FORMAT":                     "console",
	"LOG_TIME_FORMAT":                time.RFC3339,
	"LOG_OUTPUT":                     "stderr",
}

// Load reads the configuration from defaults, the optional file named by
// ZUGFERD_CONFIG and the environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString(FileEnv); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", file, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	config.DefaultProfile = strings.ToUpper(config.DefaultProfile)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validate checks values every command depends on. Settings of optional
// integrations are checked when the integration is used.
func (c *Config) validate() error {
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("TIMEOUT must be positive, got %s", c.Timeout)
	}
	known := false
	for _, p := range preferences.Profiles {
		if p == c.DefaultProfile {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("DEFAULT_PROFILE %q is not one of %s", c.DefaultProfile, strings.Join(preferences.Profiles, ", "))
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
