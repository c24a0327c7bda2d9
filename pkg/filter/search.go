// Package filter implements greedy entropy-guided activity elimination.
//
// Starting from all activities of a log, each step removes the one activity
// whose removal leaves the projected log with the lowest adjusted structural
// entropy, and records the remaining set for its size. The search stops when
// no activity is left. It is a deterministic local search; it does not look
// for the global optimum.
package filter

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/logprune/pkg/dfpg"
	"github.com/logflow/logprune/pkg/entropy"
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
)

// Step describes one completed elimination step.
type Step struct {
	// Level counts steps from 1.
	Level int

	// Total is the number of activities the search started with.
	Total int

	// From is the set the step removed an activity from.
	From eventlog.ActivitySet

	// Chosen is the entry recorded by the step.
	Chosen Entry
}

type candidate struct {
	removed  eventlog.Activity
	set      eventlog.ActivitySet
	raw      float64
	adjusted float64
}

// search carries the immutable inputs shared by every step.
type search struct {
	log  *eventlog.Log
	ix   *eventlog.Index
	opts options
}

// DetScore returns the frequency correction subtracted from the raw entropy
// of removing an activity seen count times in a projection with k distinct
// activities: 2·(k+1)²·(1/(k+1)²)^(count-1).
func DetScore(k int, count int64) float64 {
	base := float64(k+1) * float64(k+1)
	detProb := math.Pow(1/base, float64(count-1))
	return 2 * base * detProb
}

// Search runs the greedy elimination over all activities of log.
//
// Candidates are tried in canonical activity order and ties keep the earliest
// candidate, so the lexicographically smallest activity among equally good
// removals is eliminated.
func Search(ctx context.Context, log *eventlog.Log, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &search{log: log, ix: eventlog.NewIndex(log), opts: o}
	initial := log.Activities()

	ctx, span := o.tracer.Start(ctx, "filter.Search", trace.WithAttributes(
		attribute.String("log.name", log.Name),
		attribute.Int("log.traces", log.Len()),
		attribute.Int("log.activities", initial.Len()),
		attribute.Int("search.workers", o.workers),
	))
	defer span.End()

	result := &Result{
		Initial: initial,
		Table:   make(Table, initial.Len()),
		MinSize: o.minSize,
	}

	current := initial
	for level := 1; !current.IsEmpty(); level++ {
		if err := ctx.Err(); err != nil {
			cerr := lperrors.ContextCanceled("search", err)
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			return nil, cerr
		}

		entry, err := s.step(ctx, current)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		result.Table[entry.Size] = entry
		if o.observer != nil {
			o.observer(Step{Level: level, Total: initial.Len(), From: current, Chosen: entry})
		}
		current = entry.Activities
	}

	span.SetAttributes(attribute.Int("search.projections", len(result.Projections())))
	return result, nil
}

// step removes one activity from current and returns the recorded entry.
func (s *search) step(ctx context.Context, current eventlog.ActivitySet) (Entry, error) {
	ctx, span := s.opts.tracer.Start(ctx, "filter.step", trace.WithAttributes(
		attribute.Int("set.size", current.Len()),
	))
	defer span.End()

	parent, err := dfpg.Build(eventlog.ProjectIndexed(s.log, s.ix, current))
	if err != nil {
		return Entry{}, lperrors.StageFailed(lperrors.StageStatistics, err)
	}
	k := parent.Activities.Len()

	members := current.Slice()
	cands := make([]candidate, len(members))
	evaluate := func(i int) error {
		c, err := s.evaluate(current, members[i])
		if err != nil {
			return err
		}
		c.adjusted = c.raw - DetScore(k, parent.ActivityCounts.Count(members[i]))
		cands[i] = c
		return nil
	}

	if s.opts.workers <= 1 {
		for i := range members {
			if err := ctx.Err(); err != nil {
				return Entry{}, lperrors.ContextCanceled("search", err)
			}
			if err := evaluate(i); err != nil {
				return Entry{}, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.workers)
		for i := range members {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return lperrors.ContextCanceled("search", err)
				}
				return evaluate(i)
			})
		}
		if err := g.Wait(); err != nil {
			return Entry{}, err
		}
	}

	best, err := selectBest(cands)
	if err != nil {
		span.RecordError(err)
		return Entry{}, err
	}

	entry := Entry{
		Size:            best.set.Len(),
		Activities:      best.set,
		Removed:         best.removed,
		RawEntropy:      best.raw,
		AdjustedEntropy: best.adjusted,
	}
	span.SetAttributes(
		attribute.String("removed", string(entry.Removed)),
		attribute.Float64("entropy.raw", entry.RawEntropy),
		attribute.Float64("entropy.adjusted", entry.AdjustedEntropy),
	)
	return entry, nil
}

// evaluate scores the projection of the log without x.
func (s *search) evaluate(current eventlog.ActivitySet, x eventlog.Activity) (candidate, error) {
	set := current.Without(x)
	d, err := dfpg.Build(eventlog.ProjectIndexed(s.log, s.ix, set))
	if err != nil {
		return candidate{}, lperrors.StageFailed(lperrors.StageStatistics, err).
			WithContext("candidate", string(x))
	}
	return candidate{removed: x, set: set, raw: entropy.Score(d)}, nil
}

// selectBest returns the first candidate with the smallest adjusted entropy.
// Candidates whose score does not compare below math.MaxFloat64 (NaN, +Inf)
// are never selected, except that a lone candidate is always taken.
func selectBest(cands []candidate) (candidate, error) {
	best := -1
	bestVal := math.MaxFloat64
	for i, c := range cands {
		if c.adjusted < bestVal {
			best = i
			bestVal = c.adjusted
		}
	}

	switch {
	case best >= 0:
		return cands[best], nil
	case len(cands) == 1:
		return cands[0], nil
	default:
		return candidate{}, lperrors.NoCandidate(len(cands))
	}
}
