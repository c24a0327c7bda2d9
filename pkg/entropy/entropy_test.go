package entropy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/logprune/pkg/dfpg"
	"github.com/logflow/logprune/pkg/eventlog"
)

const eps = 1e-12

func acts(labels ...string) []eventlog.Activity {
	out := make([]eventlog.Activity, len(labels))
	for i, l := range labels {
		out[i] = eventlog.Activity(l)
	}
	return out
}

func repeat(n int, seq []eventlog.Activity) [][]eventlog.Activity {
	out := make([][]eventlog.Activity, n)
	for i := range out {
		out[i] = seq
	}
	return out
}

func build(t *testing.T, log *eventlog.Log) *dfpg.DFPG {
	t.Helper()
	d, err := dfpg.Build(log)
	require.NoError(t, err)
	return d
}

func TestShannon(t *testing.T) {
	tests := []struct {
		name string
		dist []float64
		want float64
	}{
		{"empty", nil, 0},
		{"certain", []float64{1}, 0},
		{"coin", []float64{0.5, 0.5}, 1},
		{"four", []float64{0.25, 0.25, 0.25, 0.25}, 2},
		{"zeros ignored", []float64{0, 1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Shannon(tt.dist), eps)
		})
	}
}

func TestDistribution(t *testing.T) {
	assert.Nil(t, Distribution(nil))
	assert.Nil(t, Distribution([]int64{0, 0}))
	assert.Equal(t, []float64{0.25, 0.75}, Distribution([]int64{1, 3}))
}

func TestScore_EmptyAndEdgeFree(t *testing.T) {
	assert.Equal(t, 0.0, Score(build(t, &eventlog.Log{})))

	// Every activity has a single start and a single end outcome.
	log := eventlog.NewLog("single", acts("a"), acts("a"), acts("b"))
	assert.Equal(t, 0.0, Score(build(t, log)))
}

func TestScore_SequentialLogIsZero(t *testing.T) {
	log := eventlog.NewLog("seq", repeat(5, acts("a", "b", "c", "d"))...)
	assert.InDelta(t, 0, Score(build(t, log)), eps)
}

func TestScore_HandComputed(t *testing.T) {
	// [B,C] x10 and [C] x1: only C's predecessor distribution {B:10, start:1}
	// is uncertain.
	sequences := append(repeat(10, acts("B", "C")), acts("C"))
	log := eventlog.NewLog("bc", sequences...)

	p, q := 10.0/11, 1.0/11
	want := -(p*math.Log2(p) + q*math.Log2(q))

	d := build(t, log)
	assert.InDelta(t, want, Score(d), eps)

	breakdown := Breakdown(d)
	require.Len(t, breakdown, 2)
	assert.Equal(t, eventlog.Activity("B"), breakdown[0].Activity)
	assert.InDelta(t, 0, breakdown[0].Total(), eps)
	assert.InDelta(t, 0, breakdown[1].Forward, eps)
	assert.InDelta(t, want, breakdown[1].Backward, eps)
}

func TestScore_ChoiceAndLoop(t *testing.T) {
	// a -> {b, c} equally, both end: forward(a) = 1 bit, backward(b), backward(c) = 0.
	log := eventlog.NewLog("choice", acts("a", "b"), acts("a", "c"))
	assert.InDelta(t, 1, Score(build(t, log)), eps)

	// a a: a's successors {a:1, end:1}, predecessors {a:1, start:1}.
	loop := eventlog.NewLog("loop", acts("a", "a"))
	assert.InDelta(t, 2, Score(build(t, loop)), eps)
}

func TestScore_NonNegative(t *testing.T) {
	logs := []*eventlog.Log{
		eventlog.NewLog("x", acts("a", "b", "a", "c"), acts("c", "b"), acts("b")),
		eventlog.NewLog("y", acts("a", "a", "a"), acts("b", "a")),
	}
	for _, log := range logs {
		assert.GreaterOrEqual(t, Score(build(t, log)), 0.0)
	}
}
