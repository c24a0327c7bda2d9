package eventlog

import "sort"

// Builder groups a flat stream of events into traces by case id.
// Traces appear in the order their case was first seen.
type Builder struct {
	name     string
	order    []string
	traces   map[string]*Trace
	sortByTS bool
}

// NewBuilder creates a builder for a log called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		traces: make(map[string]*Trace),
	}
}

// SortByTimestamp makes Build order each trace's events by timestamp.
// The sort is stable, so events with equal timestamps keep their arrival
// order. Traces containing an untimed event are left in arrival order.
func (b *Builder) SortByTimestamp(enabled bool) *Builder {
	b.sortByTS = enabled
	return b
}

// Add appends an event to the trace of caseID.
func (b *Builder) Add(caseID string, e Event) {
	b.AddKeyed(caseID, caseID, e)
}

// AddKeyed appends an event to the trace grouped under key, which is
// displayed as id. Distinct keys stay distinct traces even when their ids
// are equal.
func (b *Builder) AddKeyed(key, id string, e Event) {
	t, ok := b.traces[key]
	if !ok {
		t = &Trace{ID: id}
		b.traces[key] = t
		b.order = append(b.order, key)
	}
	t.Events = append(t.Events, e)
}

// Len returns the number of distinct cases seen so far.
func (b *Builder) Len() int {
	return len(b.order)
}

// Build returns the assembled log. The builder can keep receiving events
// afterwards; later builds include them.
func (b *Builder) Build() *Log {
	log := &Log{Name: b.name, Traces: make([]Trace, 0, len(b.order))}
	for _, id := range b.order {
		t := b.traces[id].Clone()
		if b.sortByTS && fullyTimed(t) {
			sort.SliceStable(t.Events, func(i, j int) bool {
				return t.Events[i].Timestamp.Before(t.Events[j].Timestamp)
			})
		}
		log.Traces = append(log.Traces, t)
	}
	return log
}

func fullyTimed(t Trace) bool {
	for _, e := range t.Events {
		if e.Timestamp.IsZero() {
			return false
		}
	}
	return true
}
