// Package config defines the storage engine configuration and its yaml
// loading. All tunables that were fixed constants in earlier DAQ software
// (roll-over threshold, resize chunk) are explicit fields here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/beamstore/config"
)

// Config represents the complete engine configuration.
type Config struct {
	// DataDir is the root directory for all container files.
	DataDir string `yaml:"data_dir"`

	// Storage configures partitioning and container growth.
	Storage StorageConfig `yaml:"storage"`

	// Locking configures advisory file locking.
	Locking LockingConfig `yaml:"locking"`

	// Summary configures per-batch power summaries.
	Summary SummaryConfig `yaml:"summary"`

	// Export configures the offline Parquet exporter.
	Export ExportConfig `yaml:"export"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures partitioning and container growth.
type StorageConfig struct {
	// RolloverBytes is the partition size threshold before roll-over.
	RolloverBytes int64 `yaml:"rollover_bytes"`

	// ResizeChunk is the dataset growth granularity in samples.
	ResizeChunk int `yaml:"resize_chunk"`
}

// LockingConfig configures advisory file locking.
type LockingConfig struct {
	// UseLocks enables an advisory lock on containers opened for writing.
	// When disabled, callers are responsible for serializing writers.
	UseLocks bool `yaml:"use_locks"`
}

// SummaryConfig configures per-batch power summaries.
type SummaryConfig struct {
	// Enabled enables streaming summaries during ingest.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the DDSketch relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// ExportConfig configures the offline Parquet exporter.
type ExportConfig struct {
	// Dir is the export directory. Defaults to {DataDir}/export.
	Dir string `yaml:"dir"`

	// Compression is the Parquet compression algorithm: snappy, zstd, lz4,
	// gzip, none.
	Compression string `yaml:"compression"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns a configuration with documented defaults applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Storage: StorageConfig{
			RolloverBytes: config.DefaultRolloverBytes,
			ResizeChunk:   config.DefaultResizeChunk,
		},
		Locking: LockingConfig{
			UseLocks: true,
		},
		Summary: SummaryConfig{
			Enabled:  true,
			Accuracy: config.DefaultSummaryAccuracy,
		},
		Export: ExportConfig{
			Compression: config.DefaultExportCompression,
			Level:       config.DefaultExportCompressionLevel,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a yaml configuration file and applies defaults to unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with defaults.
func (c *Config) applyDefaults() {
	if c.Storage.RolloverBytes <= 0 {
		c.Storage.RolloverBytes = config.DefaultRolloverBytes
	}
	if c.Storage.ResizeChunk <= 0 {
		c.Storage.ResizeChunk = config.DefaultResizeChunk
	}
	if c.Summary.Accuracy <= 0 {
		c.Summary.Accuracy = config.DefaultSummaryAccuracy
	}
	if c.Export.Compression == "" {
		c.Export.Compression = config.DefaultExportCompression
	}
	if c.Export.Level <= 0 {
		c.Export.Level = config.DefaultExportCompressionLevel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.RolloverBytes <= 0 {
		return fmt.Errorf("storage.rollover_bytes must be positive, got %d", c.Storage.RolloverBytes)
	}
	if c.Storage.ResizeChunk <= 0 {
		return fmt.Errorf("storage.resize_chunk must be positive, got %d", c.Storage.ResizeChunk)
	}
	if c.Summary.Accuracy < 0 || c.Summary.Accuracy >= 1 {
		return fmt.Errorf("summary.accuracy must be in [0, 1), got %g", c.Summary.Accuracy)
	}
	switch c.Export.Compression {
	case "snappy", "zstd", "lz4", "gzip", "none":
	default:
		return fmt.Errorf("export.compression %q is not supported", c.Export.Compression)
	}
	return nil
}

// ExportDir returns the export directory, defaulting to {DataDir}/export.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	return filepath.Join(c.DataDir, "export")
}

// EnsureDirectories creates the data directory if it does not exist.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
