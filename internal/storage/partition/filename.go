// Package partition resolves which container file a write or read targets:
// it owns the filename convention, enumerates existing partitions of a
// batch, and decides when an append rolls over to a new partition.
package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	rootcfg "github.com/xtxerr/beamstore/config"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Batch identifies one acquisition batch by its encoded timestamp:
// the UTC date and the second of day the batch started.
type Batch struct {
	Date    string // YYYYMMDD, UTC
	Seconds int    // seconds since midnight UTC
}

// BatchOf encodes a batch-defining timestamp.
func BatchOf(t time.Time) Batch {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return Batch{
		Date:    u.Format("20060102"),
		Seconds: int(u.Sub(midnight) / time.Second),
	}
}

// String returns the filename component, e.g. "20231114_10400".
func (b Batch) String() string {
	return fmt.Sprintf("%s_%05d", b.Date, b.Seconds)
}

// Key returns a comparable ordering key; later batches have greater keys.
func (b Batch) Key() int64 {
	date, _ := strconv.ParseInt(b.Date, 10, 64)
	return date*100000 + int64(b.Seconds)
}

// IsZero reports whether b is the zero batch.
func (b Batch) IsZero() bool { return b.Date == "" }

// Filename builds the container filename for one partition:
// {formatPrefix}{modePrefix}{objectId}_{YYYYMMDD_SSSSS}_{partitionIndex}.bst
func Filename(format types.Format, mode types.Mode, objectID int, batch Batch, part int) string {
	return fmt.Sprintf("%s%s%d_%s_%d%s",
		format.Prefix(), mode.Prefix(), objectID, batch, part, rootcfg.FileExtension)
}

// Info is a parsed container filename.
type Info struct {
	Format    types.Format
	Mode      types.Mode
	ObjectID  int
	Batch     Batch
	Partition int
}

// ParseFilename parses a container filename. It returns false for names
// that do not follow the convention.
func ParseFilename(name string) (Info, bool) {
	var info Info

	name, ok := strings.CutSuffix(name, rootcfg.FileExtension)
	if !ok {
		return info, false
	}

	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return info, false
	}

	info.Format, ok = types.ParseFormatPrefix(parts[0])
	if !ok {
		return info, false
	}
	parts = parts[1:]

	// The mode component is optional.
	if mode, ok := types.ParseModePrefix(parts[0]); ok && mode != types.ModeNone {
		info.Mode = mode
		parts = parts[1:]
	}

	if len(parts) != 4 {
		return info, false
	}

	var err error
	if info.ObjectID, err = strconv.Atoi(parts[0]); err != nil {
		return info, false
	}
	if len(parts[1]) != 8 {
		return info, false
	}
	if _, err = strconv.Atoi(parts[1]); err != nil {
		return info, false
	}
	info.Batch.Date = parts[1]
	if len(parts[2]) != 5 {
		return info, false
	}
	if info.Batch.Seconds, err = strconv.Atoi(parts[2]); err != nil {
		return info, false
	}
	if info.Partition, err = strconv.Atoi(parts[3]); err != nil || info.Partition < 0 {
		return info, false
	}
	return info, true
}
