// Package entropy scores how regular the control flow of a log is.
//
// For every activity the successor distribution (directly-follows edges plus
// ending the trace) and the predecessor distribution (directly-precedes edges
// plus starting the trace) are turned into Shannon entropies. Their sum over
// all activities is the structural entropy of the log: 0 when every activity
// has exactly one possible successor and predecessor, larger the less
// predictable the log is.
package entropy

import (
	"math"

	"github.com/logflow/logprune/pkg/dfpg"
	"github.com/logflow/logprune/pkg/eventlog"
)

// Contribution is the entropy one activity adds to the score.
type Contribution struct {
	Activity eventlog.Activity
	Forward  float64
	Backward float64
}

// Total returns Forward + Backward.
func (c Contribution) Total() float64 {
	return c.Forward + c.Backward
}

// Score returns the structural entropy of d in bits.
func Score(d *dfpg.DFPG) float64 {
	contributions := Breakdown(d)

	// All forward terms first, then all backward terms.
	var total float64
	for _, c := range contributions {
		total += c.Forward
	}
	for _, c := range contributions {
		total += c.Backward
	}
	return total
}

// Breakdown returns the per-activity contributions in canonical activity order.
func Breakdown(d *dfpg.DFPG) []Contribution {
	acts := d.Activities.Slice()
	out := make([]Contribution, len(acts))
	for i, a := range acts {
		out[i] = Contribution{
			Activity: a,
			Forward:  activityEntropy(d.DirectlyFollows, a, d.EndCounts.Count(a)),
			Backward: activityEntropy(d.DirectlyPrecedes, a, d.StartCounts.Count(a)),
		}
	}
	return out
}

// activityEntropy computes the entropy of a's outgoing edge weights in g,
// with terminal as one more outcome when positive.
func activityEntropy(g *dfpg.Graph, a eventlog.Activity, terminal int64) float64 {
	edges := g.Outgoing(a)
	weights := make([]int64, 0, len(edges)+1)
	for _, e := range edges {
		if e.Weight > 0 {
			weights = append(weights, e.Weight)
		}
	}
	if terminal > 0 {
		weights = append(weights, terminal)
	}

	h := Shannon(Distribution(weights))
	if math.IsNaN(h) {
		return 0
	}
	return h
}

// Distribution normalises weights into probabilities. It returns nil for an
// empty input or a non-positive sum.
func Distribution(weights []int64) []float64 {
	var sum int64
	for _, w := range weights {
		sum += w
	}
	if len(weights) == 0 || sum <= 0 {
		return nil
	}

	dist := make([]float64, len(weights))
	for i, w := range weights {
		dist[i] = float64(w) / float64(sum)
	}
	return dist
}

// Shannon returns -Σ p·log2(p) over the strictly positive entries of dist.
func Shannon(dist []float64) float64 {
	var h float64
	for _, p := range dist {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
