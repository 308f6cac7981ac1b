package emitter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings loaded from YAML, TOML or JSON.
type Config struct {
	Logging  LoggingConfig              `json:"logging" yaml:"logging" toml:"logging"`
	Handlers map[string]HandlerOverride `json:"handlers" yaml:"handlers" toml:"handlers"`
}

// LoggingConfig configures NewLoggerFromConfig.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// HandlerOverride replaces registered policy for one action type.
type HandlerOverride struct {
	CancelUncompleted *bool `json:"cancel_uncompleted,omitempty" yaml:"cancel_uncompleted,omitempty" toml:"cancel_uncompleted,omitempty"`
	Payload           any   `json:"payload,omitempty" yaml:"payload,omitempty" toml:"payload,omitempty"`
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
}

func (c LoggingConfig) level() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

func (c LoggingConfig) format() string {
	if c.Format == "" {
		return "console"
	}
	return strings.ToLower(c.Format)
}

func (c LoggingConfig) Validate() error {
	if !logLevels[c.level()] {
		return newError(ErrInvalidConfig,
			fmt.Sprintf("unknown log level `%s`", c.Level), nil,
			map[string]any{"field": "logging.level"})
	}
	switch c.format() {
	case "console", "json":
	default:
		return newError(ErrInvalidConfig,
			fmt.Sprintf("unknown log format `%s`", c.Format), nil,
			map[string]any{"field": "logging.format"})
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return newError(ErrInvalidConfig, "log rotation limits cannot be negative", nil,
			map[string]any{"field": "logging"})
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	for t := range c.Handlers {
		if strings.TrimSpace(t) == "" {
			return newError(ErrInvalidConfig, "handler override type cannot be empty", nil,
				map[string]any{"field": "handlers"})
		}
	}
	return nil
}

// ParseConfig decodes data in the given format: "yaml", "yml", "toml" or
// "json". An empty format is treated as YAML.
func ParseConfig(data []byte, format string) (Config, error) {
	var cfg Config
	var err error

	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "", "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, newError(ErrInvalidConfig,
			fmt.Sprintf("unsupported config format `%s`", format), nil, nil)
	}
	if err != nil {
		return cfg, newError(ErrInvalidConfig, "failed to decode config", err,
			map[string]any{"format": format})
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a config file, picking the decoder from its extension.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newError(ErrInvalidConfig, "failed to read config file", err,
			map[string]any{"path": path})
	}
	return ParseConfig(data, filepath.Ext(path))
}

func (c Config) override(actionType string) (HandlerOverride, bool) {
	if c.Handlers == nil {
		return HandlerOverride{}, false
	}
	o, ok := c.Handlers[actionType]
	return o, ok
}
