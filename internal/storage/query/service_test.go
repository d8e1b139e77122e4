package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/xtxerr/beamstore/internal/storage/export"
	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func seedExport(t *testing.T, exportDir string, nSamples int) {
	t.Helper()
	src := t.TempDir()

	m, err := format.NewRaw(format.Options{Dir: src}, format.RawConfig{NAntennas: 2, NPols: 2})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	data := make([]byte, 2*2*nSamples*2)
	for i := range data {
		data[i] = byte(i + 1)
	}
	if _, err := m.Ingest(format.IngestRequest{
		Data:         data,
		Timestamp:    1700000000,
		ObjectID:     1,
		SamplingTime: 1.0,
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	e := export.New(export.DefaultOptions(exportDir))
	if _, err := e.ExportBatch(context.Background(), src, types.FormatRaw, types.ModeNone, 1, nil); err != nil {
		t.Fatalf("ExportBatch: %v", err)
	}
}

func TestQuerySamples(t *testing.T) {
	exportDir := t.TempDir()
	const nSamples = 10
	seedExport(t, exportDir, nSamples)

	s, err := New(Options{ExportDir: exportDir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	rows, err := s.QuerySamples(context.Background(), SampleQuery{Format: types.FormatRaw, ObjectID: 1})
	if err != nil {
		t.Fatalf("QuerySamples: %v", err)
	}
	if len(rows) != nSamples {
		t.Fatalf("got %d rows, want %d", len(rows), nSamples)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp < rows[i-1].Timestamp {
			t.Fatalf("rows out of timestamp order at %d", i)
		}
	}

	// The time bounds narrow the window.
	rows, err = s.QuerySamples(context.Background(), SampleQuery{
		Format:   types.FormatRaw,
		ObjectID: 1,
		StartTs:  1700000002,
		EndTs:    1700000005,
	})
	if err != nil {
		t.Fatalf("bounded QuerySamples: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("bounded query returned %d rows, want 4", len(rows))
	}

	// Another object has no data.
	rows, err = s.QuerySamples(context.Background(), SampleQuery{Format: types.FormatRaw, ObjectID: 99})
	if err != nil {
		t.Fatalf("QuerySamples other object: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("other object returned %d rows", len(rows))
	}

	stats := s.Stats()
	if stats.QueriesExecuted != 3 {
		t.Errorf("QueriesExecuted = %d, want 3", stats.QueriesExecuted)
	}
}

func TestExecuteSQL(t *testing.T) {
	exportDir := t.TempDir()
	seedExport(t, exportDir, 5)

	s, err := New(Options{ExportDir: exportDir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	q := fmt.Sprintf("SELECT count(*) AS n FROM read_parquet('%s')", s.Pattern())
	rows, err := s.ExecuteSQL(context.Background(), q)
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d result rows, want 1", len(rows))
	}
	if n, ok := rows[0]["n"].(int64); !ok || n != 5 {
		t.Errorf("count = %v, want 5", rows[0]["n"])
	}
}
