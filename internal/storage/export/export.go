// Package export writes batch contents to Parquet files, one file per
// partition, for downstream analysis with columnar tooling.
package export

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"golang.org/x/sync/errgroup"

	rootcfg "github.com/xtxerr/beamstore/config"
	"github.com/xtxerr/beamstore/internal/logging"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/partition"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// CompressionType selects a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string; unknown values
// select zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func codec(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Options configures an Exporter.
type Options struct {
	// Dir receives the Parquet files.
	Dir string

	// Compression algorithm; default zstd.
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22).
	CompressionLevel int

	// Parallelism caps concurrent partition exports; 0 means one goroutine
	// per partition.
	Parallelism int
}

// DefaultOptions returns the default export options for the given
// destination directory.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:              dir,
		Compression:      ParseCompressionType(rootcfg.DefaultExportCompression),
		CompressionLevel: rootcfg.DefaultExportCompressionLevel,
	}
}

// SampleRow is one exported sample of one dataset: its timestamp and its
// mean element power.
type SampleRow struct {
	Format    string  `parquet:"format,zstd"`
	ObjectID  int32   `parquet:"object_id"`
	Partition int32   `parquet:"partition"`
	Dataset   string  `parquet:"dataset,zstd"`
	Sample    int64   `parquet:"sample"`
	Timestamp float64 `parquet:"timestamp"`
	Power     float64 `parquet:"power"`
}

// Exporter converts container partitions to Parquet.
type Exporter struct {
	opts Options
	log  *slog.Logger
}

// New creates an Exporter. The destination directory is created on first
// export.
func New(opts Options) *Exporter {
	return &Exporter{opts: opts, log: logging.Component("export")}
}

// ExportBatch exports every partition of one batch, in parallel, and
// returns the written file paths in partition order. A nil batch selects
// the object's most recent batch.
func (e *Exporter) ExportBatch(ctx context.Context, srcDir string, f types.Format, mode types.Mode, objectID int, batch *partition.Batch) ([]string, error) {
	resolver := partition.NewResolver(srcDir, f, mode, 0)
	highest, resolved, err := resolver.ListPartitions(batch, objectID)
	if err != nil {
		return nil, err
	}
	if highest < 0 {
		return nil, fmt.Errorf("no %s batch for object %d", f, objectID)
	}

	if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	paths := make([]string, highest+1)
	g, ctx := errgroup.WithContext(ctx)
	if e.opts.Parallelism > 0 {
		g.SetLimit(e.opts.Parallelism)
	}
	for part := 0; part <= highest; part++ {
		part := part
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src := resolver.Path(objectID, resolved, part)
			dst := e.destPath(src)
			if err := e.exportPartition(src, dst, f, objectID, part); err != nil {
				return fmt.Errorf("export partition %d: %w", part, err)
			}
			paths[part] = dst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Info("batch exported",
		"format", f.String(),
		"object", objectID,
		"partitions", highest+1,
		"dir", e.opts.Dir)
	return paths, nil
}

func (e *Exporter) destPath(src string) string {
	name := strings.TrimSuffix(filepath.Base(src), rootcfg.FileExtension)
	return filepath.Join(e.opts.Dir, name+".parquet")
}

// exportPartition writes one partition's per-sample power rows. The row
// stream covers every data dataset; the timestamp and packet indexes are
// consumed but not exported as rows.
func (e *Exporter) exportPartition(src, dst string, f types.Format, objectID, part int) error {
	c, err := container.Open(src, container.ModeRead, container.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	tds, err := c.Dataset("sample_timestamps/data")
	if err != nil {
		return err
	}
	raw, err := tds.ReadAll()
	if err != nil {
		return err
	}
	timestamps := float64Index(raw)

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	w := parquet.NewGenericWriter[SampleRow](out, parquet.Compression(codec(e.opts.Compression)))

	err = func() error {
		for _, name := range c.Datasets() {
			if name == "sample_timestamps/data" || name == "sample_packets/data" {
				continue
			}
			ds, err := c.Dataset(name)
			if err != nil {
				return err
			}
			frames, err := ds.ReadAll()
			if err != nil {
				return err
			}
			power := format.FramePower(frames, ds.DataType(), ds.FrameBytes())

			rows := make([]SampleRow, len(power))
			for i := range rows {
				ts := 0.0
				if i < len(timestamps) {
					ts = timestamps[i]
				}
				rows[i] = SampleRow{
					Format:    f.String(),
					ObjectID:  int32(objectID),
					Partition: int32(part),
					Dataset:   name,
					Sample:    int64(i),
					Timestamp: ts,
					Power:     power[i],
				}
			}
			if _, err := w.Write(rows); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		w.Close()
		out.Close()
		os.Remove(dst)
		return err
	}

	if err := w.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("close writer: %w", err)
	}
	return out.Close()
}

func float64Index(raw []byte) []float64 {
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}
