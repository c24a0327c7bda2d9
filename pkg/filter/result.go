package filter

import (
	"sort"

	"github.com/logflow/logprune/pkg/eventlog"
)

// Entry is the best activity set found for one size.
type Entry struct {
	Size            int                  `json:"size"`
	Activities      eventlog.ActivitySet `json:"activities"`
	Removed         eventlog.Activity    `json:"removed"`
	RawEntropy      float64              `json:"raw_entropy"`
	AdjustedEntropy float64              `json:"adjusted_entropy"`
}

// Table maps an activity-set size to the best set recorded for it.
type Table map[int]Entry

// Sizes returns the recorded sizes, largest first.
func (t Table) Sizes() []int {
	sizes := make([]int, 0, len(t))
	for size := range t {
		sizes = append(sizes, size)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}

// Result is the outcome of a search.
type Result struct {
	// Initial is the set of all activities of the searched log.
	Initial eventlog.ActivitySet `json:"initial"`

	// Table holds one entry per size from len(Initial)-1 down to 0.
	Table Table `json:"table"`

	// MinSize is the size threshold applied by Projections.
	MinSize int `json:"min_size"`
}

// Projections returns the table entries larger than MinSize, largest first.
func (r *Result) Projections() []Entry {
	var out []Entry
	for _, size := range r.Table.Sizes() {
		if size > r.MinSize {
			out = append(out, r.Table[size])
		}
	}
	return out
}

// Sets returns the activity sets of Projections.
func (r *Result) Sets() []eventlog.ActivitySet {
	entries := r.Projections()
	sets := make([]eventlog.ActivitySet, len(entries))
	for i, e := range entries {
		sets[i] = e.Activities
	}
	return sets
}

// Logs projects log onto each set returned by Sets.
func (r *Result) Logs(log *eventlog.Log) []*eventlog.Log {
	ix := eventlog.NewIndex(log)
	sets := r.Sets()
	logs := make([]*eventlog.Log, len(sets))
	for i, set := range sets {
		logs[i] = eventlog.ProjectIndexed(log, ix, set)
	}
	return logs
}
