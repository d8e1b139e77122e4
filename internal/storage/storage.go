// Package storage wires the persistence engine together: format managers
// over partitioned container files, streaming power summaries, Parquet
// export and SQL query access.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/xtxerr/beamstore/internal/storage/aggregate"
	"github.com/xtxerr/beamstore/internal/storage/config"
	"github.com/xtxerr/beamstore/internal/storage/export"
	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/partition"
	"github.com/xtxerr/beamstore/internal/storage/query"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Engine is the top-level persistence engine.
type Engine struct {
	mu sync.Mutex

	cfg      *config.Config
	summary  *aggregate.Summary
	exporter *export.Exporter
	query    *query.Service
}

// New creates an engine from the given configuration. A nil configuration
// selects the defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	e := &Engine{cfg: cfg}
	if cfg.Summary.Enabled {
		e.summary = aggregate.NewSummary(cfg.Summary.Accuracy)
	}
	e.exporter = export.New(export.Options{
		Dir:              cfg.ExportDir(),
		Compression:      export.ParseCompressionType(cfg.Export.Compression),
		CompressionLevel: cfg.Export.Level,
	})
	return e, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query != nil {
		err := e.query.Close()
		e.query = nil
		return err
	}
	return nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) managerOptions(mode types.Mode) format.Options {
	opts := format.Options{
		Dir:           e.cfg.DataDir,
		Mode:          mode,
		RolloverBytes: e.cfg.Storage.RolloverBytes,
		ResizeChunk:   e.cfg.Storage.ResizeChunk,
		UseLocks:      e.cfg.Locking.UseLocks,
	}
	if e.summary != nil {
		opts.Observer = e.summary
	}
	return opts
}

// Raw creates a raw-format manager for the given acquisition mode.
func (e *Engine) Raw(mode types.Mode, cfg format.RawConfig) (*format.Raw, error) {
	return format.NewRaw(e.managerOptions(mode), cfg)
}

// Channel creates a channel-format manager for the given acquisition mode.
func (e *Engine) Channel(mode types.Mode, cfg format.ChannelConfig) (*format.Channel, error) {
	return format.NewChannel(e.managerOptions(mode), cfg)
}

// Correlation creates a correlation-format manager.
func (e *Engine) Correlation(cfg format.CorrelationConfig) (*format.Correlation, error) {
	return format.NewCorrelation(e.managerOptions(types.ModeNone), cfg)
}

// StationBeam creates a station-beam-format manager.
func (e *Engine) StationBeam(cfg format.StationBeamConfig) (*format.StationBeam, error) {
	return format.NewStationBeam(e.managerOptions(types.ModeIntegrated), cfg)
}

// Summary returns the streaming power summary registry, or nil when
// summaries are disabled.
func (e *Engine) Summary() *aggregate.Summary { return e.summary }

// ExportBatch exports one batch of one object to Parquet and returns the
// written file paths. A nil batch selects the object's most recent batch.
func (e *Engine) ExportBatch(ctx context.Context, f types.Format, mode types.Mode, objectID int, batch *partition.Batch) ([]string, error) {
	return e.exporter.ExportBatch(ctx, e.cfg.DataDir, f, mode, objectID, batch)
}

// Query returns the SQL query service over the export directory, creating
// it on first use.
func (e *Engine) Query() (*query.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query == nil {
		q, err := query.New(query.Options{ExportDir: e.cfg.ExportDir()})
		if err != nil {
			return nil, err
		}
		e.query = q
	}
	return e.query, nil
}
