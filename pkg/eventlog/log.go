// Package eventlog defines the in-memory event log consumed by the activity filter:
// activity-labelled events grouped into ordered traces.
//
// A Log is treated as a value. Nothing in this package mutates a Log handed to it;
// transformations such as Project always return a fresh copy.
package eventlog

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Activity is the label identifying the type of an event, for example "Submit Form".
type Activity string

// Event is a single occurrence of an activity within a trace.
type Event struct {
	Activity  Activity
	Timestamp time.Time
	Resource  string
}

// Trace is one case's ordered sequence of events.
type Trace struct {
	ID     string
	Events []Event
}

// Len returns the number of events in the trace.
func (t Trace) Len() int {
	return len(t.Events)
}

// Clone returns a deep copy of the trace.
func (t Trace) Clone() Trace {
	events := make([]Event, len(t.Events))
	copy(events, t.Events)
	return Trace{ID: t.ID, Events: events}
}

// Log is an ordered collection of traces.
type Log struct {
	Name   string
	Traces []Trace
}

// NewLog builds a log from activity sequences, one trace per sequence.
// Trace ids are the 1-based sequence positions. It is mostly useful in tests
// and for small synthetic logs.
func NewLog(name string, sequences ...[]Activity) *Log {
	log := &Log{Name: name, Traces: make([]Trace, 0, len(sequences))}
	for i, seq := range sequences {
		events := make([]Event, len(seq))
		for j, a := range seq {
			events[j] = Event{Activity: a}
		}
		log.Traces = append(log.Traces, Trace{ID: strconv.Itoa(i + 1), Events: events})
	}
	return log
}

// Len returns the number of traces.
func (l *Log) Len() int {
	return len(l.Traces)
}

// EventCount returns the total number of events across all traces.
func (l *Log) EventCount() int {
	n := 0
	for _, t := range l.Traces {
		n += len(t.Events)
	}
	return n
}

// Activities returns the set of distinct activities occurring in the log.
func (l *Log) Activities() ActivitySet {
	seen := make(map[Activity]struct{})
	for _, t := range l.Traces {
		for _, e := range t.Events {
			seen[e.Activity] = struct{}{}
		}
	}
	acts := make([]Activity, 0, len(seen))
	for a := range seen {
		acts = append(acts, a)
	}
	return NewActivitySet(acts...)
}

// Clone returns a deep copy of the log.
func (l *Log) Clone() *Log {
	out := &Log{Name: l.Name, Traces: make([]Trace, len(l.Traces))}
	for i, t := range l.Traces {
		out.Traces[i] = t.Clone()
	}
	return out
}

// Variant is a distinct activity sequence and the number of traces following it.
type Variant struct {
	Activities []Activity
	Count      int
}

// String renders the variant as "A -> B -> C".
func (v Variant) String() string {
	parts := make([]string, len(v.Activities))
	for i, a := range v.Activities {
		parts[i] = string(a)
	}
	return strings.Join(parts, " -> ")
}

// Variants groups traces by activity sequence, most frequent first.
// Ties are ordered by the rendered sequence.
func (l *Log) Variants() []Variant {
	index := make(map[string]int)
	var variants []Variant
	for _, t := range l.Traces {
		acts := make([]Activity, len(t.Events))
		for i, e := range t.Events {
			acts[i] = e.Activity
		}
		key := variantKey(acts)
		if i, ok := index[key]; ok {
			variants[i].Count++
			continue
		}
		index[key] = len(variants)
		variants = append(variants, Variant{Activities: acts, Count: 1})
	}

	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].Count != variants[j].Count {
			return variants[i].Count > variants[j].Count
		}
		return variants[i].String() < variants[j].String()
	})
	return variants
}

// variantKey joins labels with a separator that cannot appear in XES/CSV labels.
func variantKey(acts []Activity) string {
	var sb strings.Builder
	for i, a := range acts {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(string(a))
	}
	return sb.String()
}
