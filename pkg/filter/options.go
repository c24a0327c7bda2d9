package filter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMinSize is the largest projection size left out of Result.Projections.
const DefaultMinSize = 2

const tracerName = "github.com/logflow/logprune/pkg/filter"

type options struct {
	workers  int
	minSize  int
	observer func(Step)
	tracer   trace.Tracer
}

func defaultOptions() options {
	return options{
		workers: 1,
		minSize: DefaultMinSize,
		tracer:  otel.Tracer(tracerName),
	}
}

// Option configures a search.
type Option func(*options)

// WithWorkers evaluates the candidates of one elimination step on up to n
// goroutines. Results do not depend on n.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMinSize changes which projections Result.Projections reports: only
// sets with more than n activities are returned. The table always keeps every size.
func WithMinSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.minSize = n
		}
	}
}

// WithObserver registers a callback invoked once per elimination step, from
// the goroutine running Search.
func WithObserver(fn func(Step)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithTracer sets the tracer used for search spans. The global OpenTelemetry
// tracer provider is used by default.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}
