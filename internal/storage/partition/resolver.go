package partition

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/logging"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Resolver maps (batch, object id) requests onto partition files for one
// (format, mode) series. The directory is re-scanned on every call; the
// resolver caches no directory state, trading repeated stats for
// correctness under concurrent readers.
type Resolver struct {
	dir      string
	format   types.Format
	mode     types.Mode
	rollover int64
	log      *slog.Logger
}

// NewResolver creates a resolver rooted at dir for one (format, mode)
// series. rollover is the partition size threshold in bytes.
func NewResolver(dir string, format types.Format, mode types.Mode, rollover int64) *Resolver {
	return &Resolver{
		dir:      dir,
		format:   format,
		mode:     mode,
		rollover: rollover,
		log:      logging.Component("resolver"),
	}
}

// Dir returns the storage directory.
func (r *Resolver) Dir() string { return r.dir }

// Path returns the full path of one partition file.
func (r *Resolver) Path(objectID int, batch Batch, part int) string {
	return filepath.Join(r.dir, Filename(r.format, r.mode, objectID, batch, part))
}

// ListPartitions scans the storage directory for partitions of the given
// object. It returns the highest partition index found, or -1 when the
// batch has no partitions. When batch is nil the most recent batch for the
// object wins (numerically greatest encoded timestamp) and the resolved
// batch is returned alongside.
func (r *Resolver) ListPartitions(batch *Batch, objectID int) (int, Batch, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, Batch{}, nil
		}
		return -1, Batch{}, errors.IOf("scan %s: %v", r.dir, err)
	}

	highest := -1
	var resolved Batch
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := ParseFilename(entry.Name())
		if !ok || info.Format != r.format || info.Mode != r.mode || info.ObjectID != objectID {
			continue
		}
		if batch != nil {
			if info.Batch != *batch {
				continue
			}
			if info.Partition > highest {
				highest = info.Partition
				resolved = info.Batch
			}
			continue
		}
		// No batch specified: prefer the most recent batch, then the
		// highest partition within it.
		switch {
		case resolved.IsZero() || info.Batch.Key() > resolved.Key():
			resolved = info.Batch
			highest = info.Partition
		case info.Batch == resolved && info.Partition > highest:
			highest = info.Partition
		}
	}
	if highest < 0 {
		return -1, Batch{}, nil
	}
	return highest, resolved, nil
}

// SizeOf returns the committed data size in bytes of the current
// (highest-index) partition for the object's batch, or ErrNotFound when the
// batch has no partitions. Reserved directory and extent capacity does not
// count toward roll-over, only frames producers actually wrote.
func (r *Resolver) SizeOf(batch *Batch, objectID int) (int64, error) {
	highest, resolved, err := r.ListPartitions(batch, objectID)
	if err != nil {
		return 0, err
	}
	if highest < 0 {
		return 0, errors.Notfoundf("no partitions for %s object %d", r.format, objectID)
	}
	c, err := container.Open(r.Path(objectID, resolved, highest), container.ModeRead, container.Options{})
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return c.DataBytes(), nil
}

// DecideTarget picks the partition a write lands in.
//
// With append=true the write stays in the current partition while it is
// below the roll-over threshold, and rolls over to a fresh partition once
// the threshold is reached. With append=false a fresh partition is always
// created. create=true means the target partition does not exist yet.
func (r *Resolver) DecideTarget(appendMode bool, currentSize int64, highest int) (part int, create bool) {
	if !appendMode || highest < 0 {
		return highest + 1, true
	}
	if currentSize >= r.rollover {
		r.log.Info("partition roll-over",
			"format", r.format.String(),
			"size", currentSize,
			"threshold", r.rollover,
			"partition", highest+1)
		return highest + 1, true
	}
	return highest, false
}

// FinalTimestamp returns the last committed per-sample timestamp of the
// given partition, or of the latest partition when part < 0. It returns
// 0.0 when the batch has no partitions or the partition holds no committed
// samples yet. The result seeds the timestamp padding of a subsequent
// write.
func (r *Resolver) FinalTimestamp(batch *Batch, objectID, part int) (float64, error) {
	highest, resolved, err := r.ListPartitions(batch, objectID)
	if err != nil {
		return 0, err
	}
	if highest < 0 {
		return 0, nil
	}
	if part < 0 || part > highest {
		part = highest
	}

	c, err := container.Open(r.Path(objectID, resolved, part), container.ModeRead, container.Options{})
	if err != nil {
		return 0, err
	}
	defer c.Close()

	payload, err := c.ReadMetadata()
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	fields, err := meta.Decode(payload)
	if err != nil {
		return 0, err
	}
	return fields.Float(meta.FieldTsEnd)
}
