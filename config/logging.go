package config

import (
	"fmt"

	"github.com/kilianp07/salesintel/core/runlog"
)

// LoggingConfig defines settings for run log storage and rotation.
type LoggingConfig struct {
	// Backend selects the log store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = runlog.BackendJSONL
	}
	if c.Path == "" {
		c.Path = "data/runs.jsonl"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if c.Backend != runlog.BackendJSONL && c.Backend != runlog.BackendSQLite {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must be >= 0")
	}
	return nil
}

// Open returns the configured run log store.
func (c LoggingConfig) Open() (runlog.Store, error) {
	return runlog.Open(c.Backend, c.Path, runlog.Rotation{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	})
}
