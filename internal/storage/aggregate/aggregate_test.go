package aggregate

import (
	"math"
	"testing"

	"github.com/xtxerr/beamstore/internal/storage/types"
)

func TestAddAndResult(t *testing.T) {
	a := New(types.FormatRaw, 1, 0)

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for i, v := range values {
		a.Add(v, 1700000000+float64(i))
	}

	r := a.Result()
	if r.Count != 10 {
		t.Errorf("Count = %d, want 10", r.Count)
	}
	if r.Sum != 55 {
		t.Errorf("Sum = %f, want 55", r.Sum)
	}
	if r.Avg != 5.5 {
		t.Errorf("Avg = %f, want 5.5", r.Avg)
	}
	if r.Min != 1 || r.Max != 10 {
		t.Errorf("Min/Max = %f/%f, want 1/10", r.Min, r.Max)
	}
	if r.FirstTs != 1700000000 || r.LastTs != 1700000009 {
		t.Errorf("FirstTs/LastTs = %f/%f", r.FirstTs, r.LastTs)
	}
	if !r.HasPercentiles {
		t.Fatal("expected percentiles")
	}
	// 1% relative accuracy.
	if math.Abs(r.P50-5)/5 > 0.05 && math.Abs(r.P50-6)/6 > 0.05 {
		t.Errorf("P50 = %f", r.P50)
	}
	if math.Abs(r.P99-10)/10 > 0.05 {
		t.Errorf("P99 = %f, want ~10", r.P99)
	}
}

func TestEmptyResult(t *testing.T) {
	a := New(types.FormatChannel, 2, 0)
	if !a.IsEmpty() {
		t.Error("fresh aggregate not empty")
	}
	r := a.Result()
	if r.Count != 0 || r.HasPercentiles {
		t.Errorf("empty result = %+v", r)
	}
}

func TestReset(t *testing.T) {
	a := New(types.FormatRaw, 1, 0)
	a.Add(5, 1700000000)
	a.Reset()
	if !a.IsEmpty() {
		t.Error("aggregate not empty after reset")
	}
	a.Add(3, 1700000001)
	r := a.Result()
	if r.Count != 1 || r.Min != 3 || r.Max != 3 {
		t.Errorf("post-reset result = %+v", r)
	}
}

func TestMerge(t *testing.T) {
	a := New(types.FormatRaw, 1, 0)
	b := New(types.FormatRaw, 1, 0)
	a.Add(1, 1700000000)
	b.Add(9, 1700000010)

	a.Merge(b)
	r := a.Result()
	if r.Count != 2 || r.Min != 1 || r.Max != 9 {
		t.Errorf("merged result = %+v", r)
	}
	if r.FirstTs != 1700000000 || r.LastTs != 1700000010 {
		t.Errorf("merged ts = %f/%f", r.FirstTs, r.LastTs)
	}
}

func TestSummaryRegistry(t *testing.T) {
	s := NewSummary(0)

	s.ObserveWrite(types.FormatRaw, 1, []float64{1700000000, 1700000001}, []float64{2, 4})
	s.ObserveWrite(types.FormatRaw, 2, []float64{1700000000}, []float64{6})
	s.ObserveWrite(types.FormatChannel, 1, []float64{1700000000}, []float64{8})

	r, ok := s.Object(types.FormatRaw, 1)
	if !ok {
		t.Fatal("object raw/1 missing")
	}
	if r.Count != 2 || r.Avg != 3 {
		t.Errorf("raw/1 result = %+v", r)
	}

	if _, ok := s.Object(types.FormatStationBeam, 9); ok {
		t.Error("unwritten object reported present")
	}

	all := s.Results()
	if len(all) != 3 {
		t.Fatalf("Results() = %d entries, want 3", len(all))
	}
	if all[0].Format != types.FormatRaw || all[0].ObjectID != 1 {
		t.Errorf("Results()[0] = %+v, want raw/1 first", all[0])
	}
}
