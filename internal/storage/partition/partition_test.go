package partition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func TestBatchEncoding(t *testing.T) {
	// 2023-11-14 02:53:20 UTC is 10400 seconds into the day.
	ts := time.Date(2023, 11, 14, 2, 53, 20, 0, time.UTC)
	b := BatchOf(ts)

	if b.Date != "20231114" {
		t.Errorf("date = %q", b.Date)
	}
	if b.Seconds != 10400 {
		t.Errorf("seconds = %d, want 10400", b.Seconds)
	}
	if b.String() != "20231114_10400" {
		t.Errorf("string = %q", b.String())
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	b := Batch{Date: "20231114", Seconds: 123}

	cases := []struct {
		format types.Format
		mode   types.Mode
		object int
		part   int
		want   string
	}{
		{types.FormatRaw, types.ModeBurst, 3, 0, "raw_burst_3_20231114_00123_0.bst"},
		{types.FormatChannel, types.ModeContinuous, 12, 4, "channel_cont_12_20231114_00123_4.bst"},
		{types.FormatCorrelation, types.ModeNone, 78, 1, "correlation_78_20231114_00123_1.bst"},
		{types.FormatStationBeam, types.ModeIntegrated, 0, 2, "stationbeam_integ_0_20231114_00123_2.bst"},
	}

	for _, tc := range cases {
		name := Filename(tc.format, tc.mode, tc.object, b, tc.part)
		if name != tc.want {
			t.Errorf("filename = %q, want %q", name, tc.want)
			continue
		}
		info, ok := ParseFilename(name)
		if !ok {
			t.Errorf("ParseFilename(%q) failed", name)
			continue
		}
		if info.Format != tc.format || info.Mode != tc.mode ||
			info.ObjectID != tc.object || info.Batch != b || info.Partition != tc.part {
			t.Errorf("ParseFilename(%q) = %+v", name, info)
		}
	}
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	bad := []string{
		"notes.txt",
		"raw_3.bst",
		"mystery_3_20231114_00123_0.bst",
		"raw_burst_x_20231114_00123_0.bst",
		"raw_burst_3_2023114_00123_0.bst",
		"raw_burst_3_20231114_123_0.bst",
	}
	for _, name := range bad {
		if _, ok := ParseFilename(name); ok {
			t.Errorf("ParseFilename(%q) accepted", name)
		}
	}
}

func touch(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0644); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

func TestListPartitions(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir, types.FormatChannel, types.ModeBurst, 1<<20)

	b := Batch{Date: "20231114", Seconds: 100}

	// Nothing yet.
	highest, _, err := r.ListPartitions(&b, 3)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if highest != -1 {
		t.Errorf("highest = %d, want -1", highest)
	}

	touch(t, dir, "channel_burst_3_20231114_00100_0.bst", 10)
	touch(t, dir, "channel_burst_3_20231114_00100_1.bst", 10)
	touch(t, dir, "channel_burst_3_20231114_00100_2.bst", 10)
	// Distractors: other object, other mode, other format.
	touch(t, dir, "channel_burst_4_20231114_00100_7.bst", 10)
	touch(t, dir, "channel_cont_3_20231114_00100_9.bst", 10)
	touch(t, dir, "raw_burst_3_20231114_00100_8.bst", 10)

	highest, resolved, err := r.ListPartitions(&b, 3)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if highest != 2 {
		t.Errorf("highest = %d, want 2", highest)
	}
	if resolved != b {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestListPartitionsMostRecentBatch(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir, types.FormatRaw, types.ModeNone, 1<<20)

	touch(t, dir, "raw_5_20231113_00500_0.bst", 10)
	touch(t, dir, "raw_5_20231113_00500_1.bst", 10)
	touch(t, dir, "raw_5_20231114_00100_0.bst", 10)

	// With no batch specified the numerically greatest timestamp wins.
	highest, resolved, err := r.ListPartitions(nil, 5)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if resolved.Date != "20231114" || resolved.Seconds != 100 {
		t.Errorf("resolved = %+v, want most recent batch", resolved)
	}
	if highest != 0 {
		t.Errorf("highest = %d, want 0", highest)
	}
}

func TestSizeOf(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir, types.FormatRaw, types.ModeNone, 1<<20)
	b := Batch{Date: "20231114", Seconds: 100}

	if _, err := r.SizeOf(&b, 1); !errors.IsNotFound(err) {
		t.Errorf("SizeOf without partitions: got %v, want ErrNotFound", err)
	}

	writePartition(t, r.Path(1, b, 0), 4)
	writePartition(t, r.Path(1, b, 1), 12)

	size, err := r.SizeOf(&b, 1)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 12 {
		t.Errorf("size = %d, want committed bytes of highest partition 12", size)
	}

	// Reserved directory and extent capacity never counts, only committed
	// frames do.
	st, err := os.Stat(r.Path(1, b, 1))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() <= 12 {
		t.Fatalf("partition file %d bytes, expected reserved capacity beyond the data", st.Size())
	}
}

// writePartition creates a container holding one single-byte-frame dataset
// with the given number of committed frames.
func writePartition(t *testing.T, path string, frames int) {
	t.Helper()
	c, err := container.Open(path, container.ModeCreate, container.Options{})
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	ds, err := c.CreateDataset("raw_/data", types.DataTypeInt8, []int{1}, 4, 0)
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if err := ds.Append(make([]byte, frames)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDecideTarget(t *testing.T) {
	r := NewResolver(t.TempDir(), types.FormatRaw, types.ModeNone, 1000)

	cases := []struct {
		name       string
		append     bool
		size       int64
		highest    int
		wantPart   int
		wantCreate bool
	}{
		{"append below threshold", true, 500, 2, 2, false},
		{"append at threshold rolls over", true, 1000, 2, 3, true},
		{"append with no partitions", true, 0, -1, 0, true},
		{"no append creates next", false, 500, 2, 3, true},
		{"no append with no partitions", false, 0, -1, 0, true},
	}

	for _, tc := range cases {
		part, create := r.DecideTarget(tc.append, tc.size, tc.highest)
		if part != tc.wantPart || create != tc.wantCreate {
			t.Errorf("%s: got (%d, %v), want (%d, %v)",
				tc.name, part, create, tc.wantPart, tc.wantCreate)
		}
	}
}

func TestFinalTimestamp(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir, types.FormatRaw, types.ModeNone, 1<<20)
	b := Batch{Date: "20231114", Seconds: 100}

	// No partitions: 0.0, not an error.
	ts, err := r.FinalTimestamp(&b, 1, -1)
	if err != nil || ts != 0 {
		t.Fatalf("FinalTimestamp empty = %v, %v", ts, err)
	}

	// Write a container with a metadata record.
	path := r.Path(1, b, 0)
	c, err := container.Open(path, container.ModeCreate, container.Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fields := meta.Fields{
		meta.FieldTsStart: meta.Float(10.0),
		meta.FieldTsEnd:   meta.Float(42.5),
	}
	if err := c.WriteMetadata(meta.Encode(fields)); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	c.Close()

	ts, err = r.FinalTimestamp(&b, 1, -1)
	if err != nil {
		t.Fatalf("FinalTimestamp: %v", err)
	}
	if ts != 42.5 {
		t.Errorf("final ts = %g, want 42.5", ts)
	}
}
