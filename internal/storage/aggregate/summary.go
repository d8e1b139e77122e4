package aggregate

import (
	"sort"
	"sync"

	"github.com/xtxerr/beamstore/internal/storage/types"
)

type key struct {
	format types.Format
	object int
}

// Summary is a registry of per-object power aggregates. Its ObserveWrite
// method satisfies the format manager's observer contract, so a Summary
// wired into the managers accumulates statistics for every committed write.
type Summary struct {
	mu       sync.Mutex
	accuracy float64
	aggs     map[key]*PowerAggregate
}

// NewSummary creates an empty registry. A non-positive accuracy selects
// the default relative accuracy.
func NewSummary(accuracy float64) *Summary {
	return &Summary{
		accuracy: accuracy,
		aggs:     make(map[key]*PowerAggregate),
	}
}

// ObserveWrite folds one committed write into the object's aggregate.
func (s *Summary) ObserveWrite(format types.Format, objectID int, timestamps, power []float64) {
	s.get(format, objectID).AddBatch(timestamps, power)
}

func (s *Summary) get(format types.Format, objectID int) *PowerAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{format: format, object: objectID}
	a, ok := s.aggs[k]
	if !ok {
		a = New(format, objectID, s.accuracy)
		s.aggs[k] = a
	}
	return a
}

// Object returns the aggregate snapshot for one object, or false when the
// object has never been written.
func (s *Summary) Object(format types.Format, objectID int) (Result, bool) {
	s.mu.Lock()
	a, ok := s.aggs[key{format: format, object: objectID}]
	s.mu.Unlock()
	if !ok {
		return Result{}, false
	}
	return a.Result(), true
}

// Results returns snapshots for every tracked object, ordered by format
// then object id.
func (s *Summary) Results() []Result {
	s.mu.Lock()
	aggs := make([]*PowerAggregate, 0, len(s.aggs))
	for _, a := range s.aggs {
		aggs = append(aggs, a)
	}
	s.mu.Unlock()

	out := make([]Result, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, a.Result())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Format != out[j].Format {
			return out[i].Format < out[j].Format
		}
		return out[i].ObjectID < out[j].ObjectID
	})
	return out
}
