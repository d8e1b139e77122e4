// Package config provides configuration defaults for the beamstore engine.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or programmatically through
// the storage configuration struct.
package config

// =============================================================================
// Partitioning Defaults
// =============================================================================

const (
	// DefaultRolloverBytes is the partition size threshold. Once the active
	// partition file reaches this size an append targets a new partition.
	// 2.0 GB keeps individual containers manageable for offline transfer.
	// Override via config: storage.rollover_bytes
	DefaultRolloverBytes int64 = 2 * 1024 * 1024 * 1024

	// DefaultResizeChunk is the dataset growth granularity in samples.
	// Datasets are extended in chunks of this many samples to avoid
	// per-sample reallocation. When the samples-per-block count is known it
	// is used instead.
	// Override via config: storage.resize_chunk
	DefaultResizeChunk = 1024
)

// =============================================================================
// Container Defaults
// =============================================================================

const (
	// DefaultMetadataCapacity is the byte capacity reserved for the root
	// metadata record in every container. The record is rewritten in place
	// on each committed write and must fit this region.
	DefaultMetadataCapacity = 8192

	// DefaultDatasetSlots is the number of dataset slots reserved in a
	// container. StationBeam containers use the most: one dataset per
	// polarisation plus the timestamp and packet-counter indexes.
	DefaultDatasetSlots = 8

	// DefaultExtentFloorBytes is the minimum byte span of one data extent.
	// Small-frame datasets round their extent granularity up to this span,
	// which keeps the extent directory small enough to cover the roll-over
	// threshold.
	DefaultExtentFloorBytes int64 = 256 * 1024

	// FileExtension is the container file extension.
	FileExtension = ".bst"
)

// =============================================================================
// Summary Defaults
// =============================================================================

const (
	// DefaultSummaryAccuracy is the DDSketch relative accuracy used for
	// per-batch power percentiles (0.01 = 1% error).
	// Override via config: summary.accuracy
	DefaultSummaryAccuracy = 0.01
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet compression algorithm used by
	// the offline exporter.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultExportCompressionLevel is the zstd compression level.
	// Override via config: export.level
	DefaultExportCompressionLevel = 3
)
