package eventlog

// Project returns a copy of log restricted to the activities in set.
// Events outside set are dropped and traces left without events are removed.
// The input log is never modified; trace and event slices of the result are
// freshly allocated.
func Project(log *Log, set ActivitySet) *Log {
	out := &Log{Name: log.Name}
	if set.IsEmpty() {
		out.Traces = []Trace{}
		return out
	}

	out.Traces = make([]Trace, 0, len(log.Traces))
	for _, t := range log.Traces {
		if projected, ok := projectTrace(t, set); ok {
			out.Traces = append(out.Traces, projected)
		}
	}
	return out
}

// ProjectIndexed is Project for callers that keep an Index of log. Only traces
// containing at least one member of set are visited.
func ProjectIndexed(log *Log, ix *Index, set ActivitySet) *Log {
	out := &Log{Name: log.Name, Traces: []Trace{}}
	if set.IsEmpty() {
		return out
	}

	surviving := ix.Surviving(set)
	out.Traces = make([]Trace, 0, surviving.GetCardinality())
	it := surviving.Iterator()
	for it.HasNext() {
		t := log.Traces[it.Next()]
		if projected, ok := projectTrace(t, set); ok {
			out.Traces = append(out.Traces, projected)
		}
	}
	return out
}

func projectTrace(t Trace, set ActivitySet) (Trace, bool) {
	kept := 0
	for _, e := range t.Events {
		if set.Contains(e.Activity) {
			kept++
		}
	}
	if kept == 0 {
		return Trace{}, false
	}

	events := make([]Event, 0, kept)
	for _, e := range t.Events {
		if set.Contains(e.Activity) {
			events = append(events, e)
		}
	}
	return Trace{ID: t.ID, Events: events}, true
}
