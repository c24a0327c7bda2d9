// Package model defines the flat event record streamed out of the parsers.
package model

// Event is one parsed row or XES event before it is grouped into a trace.
// Fields are byte slices so parsers can reuse pooled buffers; consumers must
// copy what they keep before returning the event to its pool.
type Event struct {
	// CaseID identifies the trace the event belongs to.
	CaseID []byte

	// Trace is the 1-based ordinal of the enclosing trace element for
	// formats that delimit traces themselves (XES). Zero means events are
	// grouped by CaseID.
	Trace int

	// Activity is the event label. Empty when the source had none.
	Activity []byte

	// Lifecycle is the XES lifecycle:transition value, if any.
	Lifecycle []byte

	// Resource is the actor performing the activity.
	Resource []byte

	// Timestamp in nanoseconds since Unix epoch; 0 when unknown.
	Timestamp int64

	// Position is the 1-based row or event number in the source, for error reports.
	Position int
}

// Reset clears the event for reuse from a pool.
func (e *Event) Reset() {
	e.CaseID = e.CaseID[:0]
	e.Trace = 0
	e.Activity = e.Activity[:0]
	e.Lifecycle = e.Lifecycle[:0]
	e.Resource = e.Resource[:0]
	e.Timestamp = 0
	e.Position = 0
}
