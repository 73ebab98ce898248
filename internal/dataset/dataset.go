package dataset

import (
	"fmt"
	"sort"
	"time"
)

type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) Validate() error {
	if r.To.Before(r.From) {
		return fmt.Errorf("invalid time range: from %v is after to %v", r.From, r.To)
	}
	return nil
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

type Observation struct {
	ObservedAt  time.Time
	WaitSeconds float64
}

// Dataset holds the wait time observations fetched for a window, ordered by
// observation time ascending. An empty dataset is valid, models decide how to
// handle it.
type Dataset struct {
	Window       TimeRange
	Observations []Observation
}

func (d *Dataset) Len() int {
	return len(d.Observations)
}

func (d *Dataset) Values() []float64 {
	values := make([]float64, len(d.Observations))
	for i, obs := range d.Observations {
		values[i] = obs.WaitSeconds
	}
	return values
}

// Since returns the suffix of observations at or after cutoff.
func (d *Dataset) Since(cutoff time.Time) []Observation {
	idx := sort.Search(len(d.Observations), func(i int) bool {
		return !d.Observations[i].ObservedAt.Before(cutoff)
	})
	return d.Observations[idx:]
}

func (d *Dataset) Latest() (Observation, bool) {
	if len(d.Observations) == 0 {
		return Observation{}, false
	}
	return d.Observations[len(d.Observations)-1], true
}

func SortObservations(observations []Observation) {
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].ObservedAt.Before(observations[j].ObservedAt)
	})
}
