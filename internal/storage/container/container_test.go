package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/beamstore/internal/errors"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func TestOpenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.bst")

	if _, err := Open(path, ModeRead, Options{}); !errors.IsNotFound(err) {
		t.Errorf("ModeRead on missing file: got %v, want ErrNotFound", err)
	}
	if _, err := Open(path, ModeReadWrite, Options{}); !errors.IsNotFound(err) {
		t.Errorf("ModeReadWrite on missing file: got %v, want ErrNotFound", err)
	}
}

func TestCreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{UseLock: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ds, err := c.CreateDataset("data", types.DataTypeComplex8, []int{2, 4}, 8, 0)
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if ds.FrameBytes() != 2*4*2 {
		t.Errorf("frame bytes = %d, want 16", ds.FrameBytes())
	}

	frames := make([]byte, 3*16)
	for i := range frames {
		frames[i] = byte(i)
	}
	if err := ds.Append(frames); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := c.WriteMetadata([]byte("meta-payload")); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen read-only and verify everything survived.
	r, err := Open(path, ModeRead, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()

	payload, err := r.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if string(payload) != "meta-payload" {
		t.Errorf("metadata = %q", payload)
	}

	rds, err := r.Dataset("data")
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if rds.Samples() != 3 {
		t.Errorf("samples = %d, want 3", rds.Samples())
	}
	got, err := rds.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, frames) {
		t.Error("frames do not round-trip")
	}
}

func TestAppendAcrossExtents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Close()

	// 4-byte frames, 4 frames per extent.
	ds, err := c.CreateDataset("data", types.DataTypeFloat32, []int{1}, 4, 0)
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	// 10 frames spans three extents.
	frames := make([]byte, 10*4)
	for i := range frames {
		frames[i] = byte(i * 3)
	}
	if err := ds.Append(frames); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ds.Samples() != 10 {
		t.Fatalf("samples = %d", ds.Samples())
	}

	// Range read crossing an extent boundary.
	got, err := ds.ReadRange(3, 5)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if !bytes.Equal(got, frames[3*4:8*4]) {
		t.Error("cross-extent range mismatch")
	}

	// Appending after a partial extent continues in place.
	more := make([]byte, 2*4)
	for i := range more {
		more[i] = 0xAA
	}
	if err := ds.Append(more); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	got, err = ds.ReadRange(10, 2)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if !bytes.Equal(got, more) {
		t.Error("appended frames mismatch")
	}
}

func TestReadRangeBeyondCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Close()

	ds, err := c.CreateDataset("data", types.DataTypeInt8, []int{1}, 4, 0)
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if err := ds.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := ds.ReadRange(2, 5); err == nil {
		t.Error("expected error reading beyond committed samples")
	}
}

func TestMultipleDatasets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Close()

	d1, err := c.CreateDataset("data", types.DataTypeUint16, []int{3}, 2, 0)
	if err != nil {
		t.Fatalf("CreateDataset data: %v", err)
	}
	d2, err := c.CreateDataset("sample_timestamps", types.DataTypeFloat64, []int{1}, 2, 0)
	if err != nil {
		t.Fatalf("CreateDataset timestamps: %v", err)
	}

	// Interleave appends so extents of both datasets alternate in the file.
	for i := 0; i < 5; i++ {
		if err := d1.Append(make([]byte, 6)); err != nil {
			t.Fatalf("append data: %v", err)
		}
		if err := d2.Append([]byte{0, 0, 0, 0, 0, 0, 0, byte(i)}); err != nil {
			t.Fatalf("append ts: %v", err)
		}
	}

	got, err := d2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	for i := 0; i < 5; i++ {
		if got[i*8+7] != byte(i) {
			t.Errorf("timestamp frame %d corrupted", i)
		}
	}

	names := c.Datasets()
	if len(names) != 2 || names[0] != "data" || names[1] != "sample_timestamps" {
		t.Errorf("datasets = %v", names)
	}
}

func TestDuplicateDatasetRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Close()

	if _, err := c.CreateDataset("data", types.DataTypeInt8, []int{1}, 4, 0); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if _, err := c.CreateDataset("data", types.DataTypeInt8, []int{1}, 4, 0); err == nil {
		t.Error("expected error for duplicate dataset")
	}
}

func TestCorruptHeaderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Close()

	// Flip a byte in the magic.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 0); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	f.Close()

	if _, err := Open(path, ModeRead, Options{}); !errors.IsIntegrity(err) {
		t.Errorf("got %v, want ErrIntegrity", err)
	}
}

func TestCreateExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bst")

	c, err := Open(path, ModeCreate, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Close()

	if _, err := Open(path, ModeCreate, Options{}); err == nil {
		t.Error("expected error creating over an existing container")
	}
}
