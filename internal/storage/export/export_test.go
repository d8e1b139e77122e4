package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func seedBatch(t *testing.T, dir string, partitions, nSamples int) {
	t.Helper()
	m, err := format.NewRaw(format.Options{Dir: dir}, format.RawConfig{NAntennas: 2, NPols: 2})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	data := make([]byte, 2*2*nSamples*2)
	for i := range data {
		data[i] = byte(i)
	}
	for p := 0; p < partitions; p++ {
		if _, err := m.Ingest(format.IngestRequest{
			Data:         data,
			Timestamp:    1700000000,
			ObjectID:     1,
			SamplingTime: 1.0,
		}); err != nil {
			t.Fatalf("Ingest %d: %v", p, err)
		}
	}
}

func readRows(t *testing.T, path string) []SampleRow {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[SampleRow](f)
	defer r.Close()

	rows := make([]SampleRow, r.NumRows())
	if _, err := r.Read(rows); err != nil && err != io.EOF {
		t.Fatalf("read parquet: %v", err)
	}
	return rows
}

func TestExportBatch(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	const nSamples = 10
	seedBatch(t, src, 2, nSamples)

	e := New(DefaultOptions(dst))
	paths, err := e.ExportBatch(context.Background(), src, types.FormatRaw, types.ModeNone, 1, nil)
	if err != nil {
		t.Fatalf("ExportBatch: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("exported %d files, want 2", len(paths))
	}

	for part, path := range paths {
		if !strings.HasSuffix(path, ".parquet") {
			t.Errorf("path %q missing parquet suffix", path)
		}
		if filepath.Dir(path) != dst {
			t.Errorf("path %q outside export dir", path)
		}

		rows := readRows(t, path)
		if len(rows) != nSamples {
			t.Fatalf("partition %d: %d rows, want %d", part, len(rows), nSamples)
		}
		for i, row := range rows {
			if row.Format != "raw" || row.ObjectID != 1 || int(row.Partition) != part {
				t.Fatalf("row %d identity = %+v", i, row)
			}
			if row.Sample != int64(i) {
				t.Errorf("row %d sample index = %d", i, row.Sample)
			}
			if row.Timestamp < 1700000000 {
				t.Errorf("row %d timestamp = %f", i, row.Timestamp)
			}
		}
	}
}

func TestExportMissingBatch(t *testing.T) {
	e := New(DefaultOptions(t.TempDir()))
	if _, err := e.ExportBatch(context.Background(), t.TempDir(), types.FormatRaw, types.ModeNone, 1, nil); err == nil {
		t.Fatal("export of empty store succeeded")
	}
}
