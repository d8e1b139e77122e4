// Package aggregate maintains streaming per-object power statistics over
// ingested samples, with optional percentile estimation via DDSketch.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	rootcfg "github.com/xtxerr/beamstore/config"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Result is a snapshot of one object's power statistics.
type Result struct {
	Format   types.Format
	ObjectID int

	Count   int64
	Sum     float64
	Avg     float64
	Min     float64
	Max     float64
	FirstTs float64
	LastTs  float64

	// Percentiles of per-sample mean power; valid when HasPercentiles.
	HasPercentiles bool
	P50            float64
	P90            float64
	P95            float64
	P99            float64
}

// PowerAggregate maintains running power statistics for one object.
type PowerAggregate struct {
	mu sync.Mutex

	format   types.Format
	objectID int

	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs float64
	lastTs  float64

	accuracy float64
	sketch   *ddsketch.DDSketch
}

// New creates an aggregate for the given object. A non-positive accuracy
// selects the default relative accuracy.
func New(format types.Format, objectID int, accuracy float64) *PowerAggregate {
	if accuracy <= 0 {
		accuracy = rootcfg.DefaultSummaryAccuracy
	}
	a := &PowerAggregate{
		format:   format,
		objectID: objectID,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		a.sketch = sketch
	}
	return a
}

// Add records one per-sample power value with its timestamp.
func (a *PowerAggregate) Add(power, ts float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += power
	if power < a.min {
		a.min = power
	}
	if power > a.max {
		a.max = power
	}
	if a.firstTs == 0 || ts < a.firstTs {
		a.firstTs = ts
	}
	if ts > a.lastTs {
		a.lastTs = ts
	}
	if a.sketch != nil && power >= 0 {
		a.sketch.Add(power)
	}
}

// AddBatch records a write's power vector with its parallel timestamps.
func (a *PowerAggregate) AddBatch(timestamps, power []float64) {
	n := len(power)
	if len(timestamps) < n {
		n = len(timestamps)
	}
	for i := 0; i < n; i++ {
		a.Add(power[i], timestamps[i])
	}
}

// Count returns the number of samples recorded.
func (a *PowerAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty reports whether no samples have been recorded.
func (a *PowerAggregate) IsEmpty() bool { return a.Count() == 0 }

// Result snapshots the current statistics.
func (a *PowerAggregate) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := Result{
		Format:   a.format,
		ObjectID: a.objectID,
		Count:    a.count,
		Sum:      a.sum,
		FirstTs:  a.firstTs,
		LastTs:   a.lastTs,
	}
	if a.count > 0 {
		r.Avg = a.sum / float64(a.count)
		r.Min = a.min
		r.Max = a.max
	}
	if a.sketch != nil && a.count > 0 {
		p50, err50 := a.sketch.GetValueAtQuantile(0.50)
		p90, err90 := a.sketch.GetValueAtQuantile(0.90)
		p95, err95 := a.sketch.GetValueAtQuantile(0.95)
		p99, err99 := a.sketch.GetValueAtQuantile(0.99)
		if err50 == nil && err90 == nil && err95 == nil && err99 == nil {
			r.HasPercentiles = true
			r.P50, r.P90, r.P95, r.P99 = p50, p90, p95, p99
		}
	}
	return r
}

// Reset clears the statistics.
func (a *PowerAggregate) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.firstTs = 0
	a.lastTs = 0
	if a.sketch != nil {
		// DDSketch has no clear operation.
		if sketch, err := ddsketch.NewDefaultDDSketch(a.accuracy); err == nil {
			a.sketch = sketch
		}
	}
}

// Merge combines another object's statistics into this one.
func (a *PowerAggregate) Merge(other *PowerAggregate) {
	if other == nil {
		return
	}
	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}
	a.count += other.count
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	if a.firstTs == 0 || (other.firstTs != 0 && other.firstTs < a.firstTs) {
		a.firstTs = other.firstTs
	}
	if other.lastTs > a.lastTs {
		a.lastTs = other.lastTs
	}
	if a.sketch != nil && other.sketch != nil {
		a.sketch.MergeWith(other.sketch)
	}
}
