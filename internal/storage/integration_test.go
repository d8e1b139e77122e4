package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/xtxerr/beamstore/internal/storage/config"
	"github.com/xtxerr/beamstore/internal/storage/format"
	"github.com/xtxerr/beamstore/internal/storage/query"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestEngineIngestReadSummary(t *testing.T) {
	e, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	m, err := e.Raw(types.ModeBurst, format.RawConfig{NAntennas: 2, NPols: 2})
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}

	const nSamples = 32
	data := make([]byte, 2*2*nSamples*2)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := m.Ingest(format.IngestRequest{
		Data:         data,
		Timestamp:    1700000000,
		ObjectID:     1,
		SamplingTime: 0.5,
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := m.Read(format.ReadRequest{ObjectID: 1, NSamples: nSamples})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("read did not round-trip ingest")
	}

	sum := e.Summary()
	if sum == nil {
		t.Fatal("summary disabled with default config")
	}
	r, ok := sum.Object(types.FormatRaw, 1)
	if !ok {
		t.Fatal("summary has no entry for written object")
	}
	if r.Count != nSamples {
		t.Errorf("summary count = %d, want %d", r.Count, nSamples)
	}
}

func TestEngineSummaryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Summary.Enabled = false

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if e.Summary() != nil {
		t.Error("summary present despite being disabled")
	}
}

func TestEngineExportAndQuery(t *testing.T) {
	e, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	m, err := e.StationBeam(format.StationBeamConfig{NChannels: 4, NPols: 2})
	if err != nil {
		t.Fatalf("StationBeam: %v", err)
	}

	const nSamples = 8
	data := make([]byte, 2*nSamples*4*8)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := m.Ingest(format.IngestRequest{
		Data:         data,
		Timestamp:    1700000000,
		ObjectID:     3,
		SamplingTime: 1.0,
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	paths, err := e.ExportBatch(context.Background(), types.FormatStationBeam, types.ModeIntegrated, 3, nil)
	if err != nil {
		t.Fatalf("ExportBatch: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("exported %d files, want 1", len(paths))
	}

	q, err := e.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// 2 polarisation datasets x 8 samples.
	rows, err := q.QuerySamples(context.Background(), query.SampleQuery{
		Format:   types.FormatStationBeam,
		ObjectID: 3,
	})
	if err != nil {
		t.Fatalf("QuerySamples: %v", err)
	}
	if len(rows) != 2*nSamples {
		t.Errorf("query returned %d rows, want %d", len(rows), 2*nSamples)
	}
}

func TestEngineInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted empty data_dir")
	}
}
