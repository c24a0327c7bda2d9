// Package loader reads event logs from files into eventlog.Log values.
//
// Streaming formats go through a parser goroutine feeding a grouping
// goroutine; Parquet, and CSV when the DuckDB engine is selected, are read
// with SQL.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/parser"
)

// Engine selects how tabular inputs are read.
type Engine string

const (
	EngineStream Engine = "stream"
	EngineDuckDB Engine = "duckdb"
)

// Options configures loading.
type Options struct {
	// Parser configures column names, delimiter and lifecycle filtering.
	Parser parser.Config

	// Format overrides detection from the file name.
	Format parser.Format

	// Engine selects the reader for CSV input. Parquet always uses DuckDB.
	Engine Engine

	// SortByTimestamp orders each trace's events by timestamp.
	SortByTimestamp bool

	// EventBuffer is the channel buffer size between parser and grouping.
	EventBuffer int

	// Progress, when set, is called every ProgressEvery events with the count so far.
	Progress      func(events int64)
	ProgressEvery int64
}

// DefaultOptions returns options for XES-style column names.
func DefaultOptions() Options {
	return Options{
		Parser:          parser.DefaultConfig(),
		Engine:          EngineStream,
		SortByTimestamp: true,
		EventBuffer:     4096,
		ProgressEvery:   10000,
	}
}

// Stats describes a completed load.
type Stats struct {
	Format    parser.Format
	Events    int64
	Traces    int
	BytesRead int64
	Duration  time.Duration
}

// Load reads the log at path. Files ending in .gz are decompressed.
func Load(ctx context.Context, path string, opts Options) (*eventlog.Log, *Stats, error) {
	format := opts.Format
	if format == parser.FormatUnknown {
		format = parser.DetectFormat(path)
	}
	if format == parser.FormatUnknown {
		return nil, nil, lperrors.New(lperrors.CodeUnsupportedFormat, "cannot detect input format").
			WithContext("path", path)
	}

	if format == parser.FormatParquet || (format == parser.FormatCSV && opts.Engine == EngineDuckDB) {
		if _, err := os.Stat(path); err != nil {
			return nil, nil, openError(path, err)
		}
		eng, err := NewDuckDBEngine()
		if err != nil {
			return nil, nil, err
		}
		defer eng.Close()
		return eng.Load(ctx, path, format, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, openError(path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if parser.IsCompressed(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, lperrors.Wrap(err, lperrors.CodeParseFailed, "invalid gzip stream").
				WithContext("path", path)
		}
		defer gz.Close()
		r = gz
	}

	return Read(ctx, r, LogName(path), format, opts)
}

// Read parses r as format and groups the events into a log called name.
func Read(ctx context.Context, r io.Reader, name string, format parser.Format, opts Options) (*eventlog.Log, *Stats, error) {
	p, err := parser.NewParser(format, opts.Parser)
	if err != nil {
		return nil, nil, err
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 4096
	}

	start := time.Now()
	counter := &countingReader{r: r}
	events := make(chan *model.Event, opts.EventBuffer)
	builder := eventlog.NewBuilder(name).SortByTimestamp(opts.SortByTimestamp)
	var count int64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		return p.Parse(gctx, counter, events)
	})

	g.Go(func() error {
		for e := range events {
			if e.Trace > 0 {
				builder.AddKeyed(traceKey(e.Trace), string(e.CaseID), toEvent(e))
			} else {
				builder.Add(string(e.CaseID), toEvent(e))
			}
			pool.Events.Put(e)
			count++
			if opts.Progress != nil && opts.ProgressEvery > 0 && count%opts.ProgressEvery == 0 {
				opts.Progress(count)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if opts.Progress != nil {
		opts.Progress(count)
	}

	log := builder.Build()
	return log, &Stats{
		Format:    format,
		Events:    count,
		Traces:    log.Len(),
		BytesRead: counter.n.Load(),
		Duration:  time.Since(start),
	}, nil
}

// traceKey groups events by their trace element. The NUL prefix keeps it
// apart from any case id a row format could produce.
func traceKey(ordinal int) string {
	return "\x00" + strconv.Itoa(ordinal)
}

// LogName derives a log name from a path: "data/orders.xes.gz" is "orders".
func LogName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func toEvent(e *model.Event) eventlog.Event {
	ev := eventlog.Event{
		Activity: eventlog.Activity(e.Activity),
		Resource: string(e.Resource),
	}
	if e.Timestamp != 0 {
		ev.Timestamp = time.Unix(0, e.Timestamp).UTC()
	}
	return ev
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return lperrors.FileNotFound(path)
	}
	return lperrors.Wrap(err, lperrors.CodeFileNotFound, fmt.Sprintf("cannot open %s", path))
}

// countingReader counts bytes read for load statistics.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
