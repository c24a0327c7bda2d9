package eventlog

import (
	"github.com/RoaringBitmap/roaring"
)

// Index maps each activity to the bitmap of trace positions containing it.
// It is built once per log and is read-only afterwards, so it can be shared
// between goroutines.
type Index struct {
	postings map[Activity]*roaring.Bitmap
	traces   int
}

// NewIndex builds the posting lists for log.
func NewIndex(log *Log) *Index {
	ix := &Index{
		postings: make(map[Activity]*roaring.Bitmap),
		traces:   len(log.Traces),
	}
	for i, t := range log.Traces {
		for _, e := range t.Events {
			bm, ok := ix.postings[e.Activity]
			if !ok {
				bm = roaring.New()
				ix.postings[e.Activity] = bm
			}
			bm.Add(uint32(i))
		}
	}
	for _, bm := range ix.postings {
		bm.RunOptimize()
	}
	return ix
}

// TraceCount returns the number of traces of the indexed log.
func (ix *Index) TraceCount() int {
	return ix.traces
}

// Traces returns a copy of the posting list of a.
func (ix *Index) Traces(a Activity) *roaring.Bitmap {
	bm, ok := ix.postings[a]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// TraceFrequency returns the number of traces in which a occurs at least once.
func (ix *Index) TraceFrequency(a Activity) uint64 {
	bm, ok := ix.postings[a]
	if !ok {
		return 0
	}
	return bm.GetCardinality()
}

// Surviving returns the positions of traces that keep at least one event
// when projected onto set.
func (ix *Index) Surviving(set ActivitySet) *roaring.Bitmap {
	lists := make([]*roaring.Bitmap, 0, set.Len())
	for _, a := range set.items {
		if bm, ok := ix.postings[a]; ok {
			lists = append(lists, bm)
		}
	}
	if len(lists) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(lists...)
}
