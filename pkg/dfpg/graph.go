package dfpg

import (
	"sort"

	"github.com/logflow/logprune/pkg/eventlog"
)

// Edge is a weighted directed edge.
type Edge struct {
	From   eventlog.Activity
	To     eventlog.Activity
	Weight int64
}

// Graph is a weighted directed graph over activities. Repeated observations
// of the same pair accumulate into one edge weight.
type Graph struct {
	out map[eventlog.Activity]map[eventlog.Activity]int64
}

func newGraph() *Graph {
	return &Graph{out: make(map[eventlog.Activity]map[eventlog.Activity]int64)}
}

func (g *Graph) addEdge(from, to eventlog.Activity, w int64) {
	targets, ok := g.out[from]
	if !ok {
		targets = make(map[eventlog.Activity]int64)
		g.out[from] = targets
	}
	targets[to] += w
}

// Weight returns the weight of from→to, 0 when absent.
func (g *Graph) Weight(from, to eventlog.Activity) int64 {
	return g.out[from][to]
}

// Outgoing returns the edges leaving from, ordered by target.
func (g *Graph) Outgoing(from eventlog.Activity) []Edge {
	targets := g.out[from]
	edges := make([]Edge, 0, len(targets))
	for to, w := range targets {
		edges = append(edges, Edge{From: from, To: to, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// Edges returns every edge ordered by source, then target.
func (g *Graph) Edges() []Edge {
	sources := make([]eventlog.Activity, 0, len(g.out))
	for from := range g.out {
		sources = append(sources, from)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var edges []Edge
	for _, from := range sources {
		edges = append(edges, g.Outgoing(from)...)
	}
	return edges
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.out {
		n += len(targets)
	}
	return n
}

// MultiSet counts occurrences of activities.
type MultiSet struct {
	counts map[eventlog.Activity]int64
}

func newMultiSet() MultiSet {
	return MultiSet{counts: make(map[eventlog.Activity]int64)}
}

func (m MultiSet) add(a eventlog.Activity) {
	m.counts[a]++
}

// Count returns the cardinality of a, 0 when absent.
func (m MultiSet) Count(a eventlog.Activity) int64 {
	return m.counts[a]
}

// Len returns the number of distinct activities.
func (m MultiSet) Len() int {
	return len(m.counts)
}

// Total returns the sum of all cardinalities.
func (m MultiSet) Total() int64 {
	var n int64
	for _, c := range m.counts {
		n += c
	}
	return n
}

// Elements returns the distinct activities in canonical order.
func (m MultiSet) Elements() []eventlog.Activity {
	out := make([]eventlog.Activity, 0, len(m.counts))
	for a := range m.counts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
