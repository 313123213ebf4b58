package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kilianp07/sunledger/infra/logger"
)

// LoggingConfig sets the global log level and an optional rotated file that
// receives a copy of every log line.
type LoggingConfig struct {
	// Level is a zerolog level name: debug, info, warn, error.
	Level string            `json:"level"`
	File  logger.FileConfig `json:"file"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.File.Path != "" && c.File.MaxSizeMB == 0 {
		c.File.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.File.MaxSizeMB < 0 || c.File.MaxBackups < 0 || c.File.MaxAgeDays < 0 {
		return errors.New("logging.file limits must be >= 0")
	}
	return nil
}
