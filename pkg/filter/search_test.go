package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	lperrors "github.com/logflow/logprune/pkg/errors"
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

func set(labels ...string) eventlog.ActivitySet {
	return eventlog.NewActivitySet(acts(labels...)...)
}

// abcLog has variants [A,B,C] x10 and [A,C] x1.
func abcLog() *eventlog.Log {
	return eventlog.NewLog("abc", append(repeat(10, acts("A", "B", "C")), acts("A", "C"))...)
}

// noisyLog is a two-variant process over a,b,c,d plus one trace with a
// stray x.
func noisyLog() *eventlog.Log {
	sequences := repeat(5, acts("a", "b", "c", "d"))
	sequences = append(sequences, repeat(5, acts("a", "c", "b", "d"))...)
	sequences = append(sequences, acts("a", "x", "b", "c", "d"))
	return eventlog.NewLog("noisy", sequences...)
}

func binaryEntropy(p float64) float64 {
	q := 1 - p
	return -(p*math.Log2(p) + q*math.Log2(q))
}

func TestDetScore(t *testing.T) {
	assert.InDelta(t, 32, DetScore(3, 1), eps)
	assert.InDelta(t, 512, DetScore(3, 0), eps)
	assert.InDelta(t, 2, DetScore(2, 2), eps)
	assert.InDelta(t, 72, DetScore(5, 1), eps)
	assert.InDelta(t, math.Ldexp(1, -31), DetScore(3, 10), 1e-20)
}

func TestSearch_HandComputedFirstElimination(t *testing.T) {
	// Removing A or C leaves one uncertain distribution worth H(10/11);
	// removing B leaves [A,C] x11 with entropy 0. B is seen 10 times in a
	// 3-activity projection, so its correction is 2*16*(1/16)^9 = 2^-31.
	res, err := Search(context.Background(), abcLog())
	require.NoError(t, err)

	first := res.Table[2]
	assert.Equal(t, eventlog.Activity("B"), first.Removed)
	assert.True(t, first.Activities.Equal(set("A", "C")))
	assert.InDelta(t, 0, first.RawEntropy, eps)
	assert.InDelta(t, -math.Ldexp(1, -31), first.AdjustedEntropy, 1e-20)

	// {A,C}: removing A and removing C tie exactly; A comes first.
	second := res.Table[1]
	assert.Equal(t, eventlog.Activity("A"), second.Removed)
	assert.True(t, second.Activities.Equal(set("C")))

	last := res.Table[0]
	assert.Equal(t, eventlog.Activity("C"), last.Removed)
	assert.True(t, last.Activities.IsEmpty())

	assert.Len(t, res.Table, 3)
	assert.Empty(t, res.Projections())
}

func TestSearch_RareActivityGoesFirst(t *testing.T) {
	res, err := Search(context.Background(), noisyLog())
	require.NoError(t, err)

	first := res.Table[4]
	assert.Equal(t, eventlog.Activity("x"), first.Removed)
	assert.True(t, first.Activities.Equal(set("a", "b", "c", "d")))

	// Remaining log: [a,b,c,d] x6 and [a,c,b,d] x5. Six distributions split 6:5.
	raw := 6 * binaryEntropy(6.0/11)
	assert.InDelta(t, raw, first.RawEntropy, 1e-9)
	assert.InDelta(t, raw-72, first.AdjustedEntropy, 1e-9)

	projections := res.Projections()
	require.Len(t, projections, 2)
	assert.Equal(t, 4, projections[0].Size)
	assert.Equal(t, 3, projections[1].Size)
}

func TestSearch_TableInvariants(t *testing.T) {
	log := noisyLog()
	res, err := Search(context.Background(), log)
	require.NoError(t, err)

	n := log.Activities().Len()
	require.Len(t, res.Table, n)

	parent := res.Initial
	for size := n - 1; size >= 0; size-- {
		entry, ok := res.Table[size]
		require.True(t, ok, "missing size %d", size)
		assert.Equal(t, size, entry.Size)
		assert.Equal(t, size, entry.Activities.Len())
		assert.True(t, entry.Activities.IsSubsetOf(parent))
		assert.Equal(t, []eventlog.Activity{entry.Removed}, parent.Difference(entry.Activities).Slice())
		parent = entry.Activities
	}

	for _, e := range res.Projections() {
		assert.Greater(t, e.Size, DefaultMinSize)
	}
	var expected int
	for size := range res.Table {
		if size > DefaultMinSize {
			expected++
		}
	}
	assert.Len(t, res.Projections(), expected)
}

func TestSearch_Deterministic(t *testing.T) {
	log := noisyLog()

	first, err := Search(context.Background(), log)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 8} {
		again, err := Search(context.Background(), log, WithWorkers(workers))
		require.NoError(t, err)
		assert.Equal(t, first, again, "workers=%d", workers)
	}
}

func TestSearch_TiesGoToFirstActivity(t *testing.T) {
	// Every removal leaves only sequential traces (entropy 0) and every
	// activity occurs twice, so all candidates tie at each level.
	sequences := repeat(2, acts("a", "b"))
	sequences = append(sequences, repeat(2, acts("c", "d"))...)
	sequences = append(sequences, acts())
	log := eventlog.NewLog("ties", sequences...)

	want := []struct {
		size    int
		removed string
		left    eventlog.ActivitySet
	}{
		{3, "a", set("b", "c", "d")},
		{2, "b", set("c", "d")},
		{1, "c", set("d")},
		{0, "d", set()},
	}

	for _, workers := range []int{1, 4, 16} {
		res, err := Search(context.Background(), log, WithWorkers(workers))
		require.NoError(t, err)
		require.Len(t, res.Table, 4)

		for _, w := range want {
			entry := res.Table[w.size]
			assert.Equal(t, eventlog.Activity(w.removed), entry.Removed, "workers=%d size=%d", workers, w.size)
			assert.True(t, entry.Activities.Equal(w.left), "workers=%d size=%d", workers, w.size)
			assert.InDelta(t, 0, entry.RawEntropy, eps)
		}
		assert.InDelta(t, -DetScore(4, 2), res.Table[3].AdjustedEntropy, eps)
	}
}

func TestSearch_SingleEvent(t *testing.T) {
	log := eventlog.NewLog("tiny", acts("only"))

	res, err := Search(context.Background(), log)
	require.NoError(t, err)

	require.Len(t, res.Table, 1)
	assert.True(t, res.Table[0].Activities.IsEmpty())
	assert.Equal(t, eventlog.Activity("only"), res.Table[0].Removed)
	assert.Empty(t, res.Projections())
	assert.Empty(t, res.Logs(log))
}

func TestSearch_EmptyLog(t *testing.T) {
	res, err := Search(context.Background(), &eventlog.Log{})
	require.NoError(t, err)
	assert.Empty(t, res.Table)
	assert.Empty(t, res.Projections())
}

func TestSearch_InvalidLabel(t *testing.T) {
	log := &eventlog.Log{Traces: []eventlog.Trace{
		{ID: "c1", Events: []eventlog.Event{{Activity: "a"}, {Activity: ""}}},
	}}

	_, err := Search(context.Background(), log)
	require.Error(t, err)
	assert.True(t, lperrors.IsCode(err, lperrors.CodeStatisticsFailed))
	assert.True(t, lperrors.IsCode(err, lperrors.CodeInvalidLogData))
}

func TestSearch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, noisyLog())
	require.Error(t, err)
	assert.True(t, lperrors.IsCode(err, lperrors.CodeContextCanceled))
}

func TestSearch_ObserverAndMinSize(t *testing.T) {
	var steps []Step
	res, err := Search(context.Background(), noisyLog(),
		WithMinSize(0),
		WithObserver(func(s Step) { steps = append(steps, s) }),
	)
	require.NoError(t, err)

	require.Len(t, steps, 5)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Level)
		assert.Equal(t, 5, s.Total)
		assert.Equal(t, s.From.Len()-1, s.Chosen.Size)
	}

	// Sizes 4..1 are reported; size 0 is never larger than the threshold.
	assert.Len(t, res.Projections(), 4)
}

func TestResult_Logs(t *testing.T) {
	log := noisyLog()
	res, err := Search(context.Background(), log)
	require.NoError(t, err)

	sets := res.Sets()
	logs := res.Logs(log)
	require.Len(t, logs, len(sets))
	for i, projected := range logs {
		assert.True(t, projected.Activities().IsSubsetOf(sets[i]))
		for _, tr := range projected.Traces {
			assert.NotEmpty(t, tr.Events)
		}
	}
	assert.Equal(t, 11, log.Len(), "input log must be left untouched")
}

func TestSearch_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, err := Search(context.Background(), abcLog(), WithTracer(provider.Tracer("test")))
	require.NoError(t, err)

	var steps, roots int
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "filter.Search":
			roots++
		case "filter.step":
			steps++
		}
	}
	assert.Equal(t, 1, roots)
	assert.Equal(t, 3, steps)
}

func TestSelectBest(t *testing.T) {
	nan := math.NaN()

	best, err := selectBest([]candidate{
		{removed: "a", adjusted: 1},
		{removed: "b", adjusted: nan},
		{removed: "c", adjusted: -1},
		{removed: "d", adjusted: -1},
	})
	require.NoError(t, err)
	assert.Equal(t, eventlog.Activity("c"), best.removed)

	best, err = selectBest([]candidate{{removed: "solo", adjusted: nan}})
	require.NoError(t, err)
	assert.Equal(t, eventlog.Activity("solo"), best.removed)

	_, err = selectBest([]candidate{
		{removed: "a", adjusted: nan},
		{removed: "b", adjusted: math.Inf(1)},
	})
	assert.True(t, lperrors.IsCode(err, lperrors.CodeNoCandidate))
}
