package tsgen

import (
	"math"
	"testing"
)

func TestFirstWrite(t *testing.T) {
	// No pad: timestamps start at the buffer timestamp.
	ts := Generate(0.5, 4, 100.0, 100.0, 0)
	want := []float64{100.0, 100.5, 101.0, 101.5}

	if len(ts) != len(want) {
		t.Fatalf("got %d timestamps, want %d", len(ts), len(want))
	}
	for i := range want {
		if ts[i] != want[i] {
			t.Errorf("ts[%d] = %g, want %g", i, ts[i], want[i])
		}
	}
}

func TestZeroSamplingTime(t *testing.T) {
	ts := Generate(0, 3, 42.0, 42.0, 0)
	for i, v := range ts {
		if v != 42.0 {
			t.Errorf("ts[%d] = %g, want 42", i, v)
		}
	}
}

func TestPadSubtractsBatchTimestamp(t *testing.T) {
	// Continuation write: pad carries the absolute end of the previous
	// partition plus one interval; the batch timestamp must not be counted
	// twice.
	const (
		batch = 1000.0
		tsamp = 0.25
	)
	prevFinal := 1002.75
	pad := prevFinal + tsamp

	ts := Generate(tsamp, 3, batch, batch, pad)
	want := []float64{1003.0, 1003.25, 1003.5}
	for i := range want {
		if math.Abs(ts[i]-want[i]) > 1e-9 {
			t.Errorf("ts[%d] = %g, want %g", i, ts[i], want[i])
		}
	}
}

func TestPartitionContinuity(t *testing.T) {
	// The first timestamp after a roll-over is exactly one interval past
	// the final timestamp before it.
	const (
		batch = 500.0
		tsamp = 0.1
	)

	first := Generate(tsamp, 10, batch, batch, 0)
	final := first[len(first)-1]

	second := Generate(tsamp, 10, batch, batch, final+tsamp)
	if diff := second[0] - final; math.Abs(diff-tsamp) > 1e-9 {
		t.Errorf("gap across partitions = %g, want %g", diff, tsamp)
	}
	if second[0] <= final {
		t.Error("timestamps not strictly increasing across partitions")
	}
}

func TestEmpty(t *testing.T) {
	if ts := Generate(1.0, 0, 0, 0, 0); ts != nil {
		t.Errorf("expected nil for zero samples, got %v", ts)
	}
}
