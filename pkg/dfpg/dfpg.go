// Package dfpg derives directly-follows / directly-precedes statistics from an
// event log.
//
// A DFPG is a snapshot of one (sub-)log: two weighted graphs plus start, end
// and occurrence counts per activity. It is built in a single pass over the
// log and never changes afterwards.
package dfpg

import (
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
)

// DFPG holds the directly-follows and directly-precedes graphs of a log.
type DFPG struct {
	// Activities occurring in the log.
	Activities eventlog.ActivitySet

	// DirectlyFollows has an edge a→b weighted by how often b immediately follows a.
	DirectlyFollows *Graph

	// DirectlyPrecedes has an edge a→b weighted by how often b immediately precedes a.
	DirectlyPrecedes *Graph

	StartCounts    MultiSet
	EndCounts      MultiSet
	ActivityCounts MultiSet
}

// Build computes the DFPG of log. Empty traces contribute nothing. An event
// without an activity label fails with CodeInvalidLogData.
func Build(log *eventlog.Log) (*DFPG, error) {
	d := &DFPG{
		DirectlyFollows:  newGraph(),
		DirectlyPrecedes: newGraph(),
		StartCounts:      newMultiSet(),
		EndCounts:        newMultiSet(),
		ActivityCounts:   newMultiSet(),
	}

	for _, t := range log.Traces {
		if len(t.Events) == 0 {
			continue
		}

		var prev eventlog.Activity
		for i, e := range t.Events {
			if e.Activity == "" {
				return nil, lperrors.InvalidLogData(t.ID, i)
			}
			d.ActivityCounts.add(e.Activity)
			if i > 0 {
				d.DirectlyFollows.addEdge(prev, e.Activity, 1)
				d.DirectlyPrecedes.addEdge(e.Activity, prev, 1)
			}
			prev = e.Activity
		}

		d.StartCounts.add(t.Events[0].Activity)
		d.EndCounts.add(t.Events[len(t.Events)-1].Activity)
	}

	d.Activities = eventlog.NewActivitySet(d.ActivityCounts.Elements()...)
	return d, nil
}
