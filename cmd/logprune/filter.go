package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/logprune/pkg/cache"
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/filter"
	"github.com/logflow/logprune/pkg/report"
	"github.com/logflow/logprune/pkg/storage"
	"github.com/logflow/logprune/pkg/tui"
	"github.com/logflow/logprune/pkg/writer"
)

var filterCmd = &cobra.Command{
	Use:   "filter <input>",
	Short: "Search activity subsets and write the projected logs",
	Long: `Run the greedy elimination over all activities of the input log. For each
activity set larger than --min-size the log projected onto that set is written
to the output directory as <log>-<size>.<format>, next to a run report.

Examples:
  logprune filter orders.xes
  logprune filter events.csv --case-id case --activity task -o out/
  logprune filter s3://logs/orders.xes.gz -o s3://logs/pruned --format parquet
  logprune filter events.parquet --workers 8 --min-size 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := current.runFilter(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		current.printRun(rep)
		return nil
	},
}

func init() {
	addInputFlags(filterCmd)
	addOutputFlags(filterCmd)
}

// runFilter loads input, searches it (or takes the cached result), writes
// the projections and the report.
func (a *app) runFilter(ctx context.Context, input string) (*report.Report, error) {
	start := time.Now()
	a.logger.Info("start", "input", input)

	log, stats, err := a.loadLog(ctx, input)
	if err != nil {
		return nil, err
	}
	loaded := time.Now()

	rep := report.New(report.DescribeLog(input, stats.Format.String(), log), start)
	rep.Input.Bytes = stats.BytesRead
	rep.Workers = workers(a.cfg)
	rep.Timings.Load = loaded.Sub(start)

	res, cached, err := a.search(ctx, log)
	if err != nil {
		return nil, err
	}
	rep.Cached = cached
	rep.SetResult(res)
	searched := time.Now()
	rep.Timings.Search = searched.Sub(loaded)

	if err := a.writeProjections(ctx, log, res, rep); err != nil {
		return nil, err
	}
	rep.Timings.Write = time.Since(searched)
	rep.Timings.Total = time.Since(start)

	if err := a.writeReport(ctx, rep); err != nil {
		return nil, err
	}

	a.logger.Info("end",
		"input", input,
		"projections", len(rep.Selected()),
		"cached", cached,
		"duration", rep.Timings.Total)
	return rep, nil
}

// search returns the elimination result for log, consulting the cache.
func (a *app) search(ctx context.Context, log *eventlog.Log) (*filter.Result, bool, error) {
	results := a.openCache(ctx)
	key := cache.Fingerprint(log, a.cfg.Search.MinSize)

	if results != nil {
		res, ok, err := results.Lookup(ctx, key)
		switch {
		case err != nil:
			a.logger.Warn("cache lookup failed", "key", key, "error", err)
		case ok:
			a.logger.Debug("cache hit", "key", key)
			return res, true, nil
		}
	}

	opts := []filter.Option{
		filter.WithWorkers(workers(a.cfg)),
		filter.WithMinSize(a.cfg.Search.MinSize),
	}
	var advance func()
	if total := log.Activities().Len(); a.progress && total > 0 {
		bar := tui.ShowProgress(os.Stderr, int64(total), "eliminating")
		defer bar.Finish()
		advance = func() { bar.Add(1) }
	}
	opts = append(opts, filter.WithObserver(func(s filter.Step) {
		if advance != nil {
			advance()
		}
		a.logger.Debug("step",
			"level", s.Level,
			"size", s.Chosen.Size,
			"removed", string(s.Chosen.Removed),
			"adjusted_entropy", s.Chosen.AdjustedEntropy)
	}))

	res, err := filter.Search(ctx, log, opts...)
	if err != nil {
		return nil, false, err
	}

	if results != nil {
		if err := results.Save(ctx, key, res); err != nil {
			a.logger.Warn("cache store failed", "key", key, "error", err)
		}
	}
	return res, false, nil
}

// writeProjections writes one log per reported activity set.
func (a *app) writeProjections(ctx context.Context, log *eventlog.Log, res *filter.Result, rep *report.Report) error {
	wcfg, err := writerConfig(a.cfg)
	if err != nil {
		return err
	}
	sopts := storageOptions(a.cfg)

	entries := res.Projections()
	for i, projected := range res.Logs(log) {
		size := entries[i].Size
		projected.Name = log.Name + "-" + strconv.Itoa(size)
		uri := storage.Join(a.cfg.Output.Dir, projected.Name+wcfg.Format.Extension())

		if err := writeTo(ctx, uri, sopts, func(w io.Writer) error {
			return writer.WriteLog(ctx, w, projected, wcfg)
		}); err != nil {
			return err
		}
		rep.SetOutput(size, projected.Len(), uri)
		a.logger.Debug("projection written", "size", size, "traces", projected.Len(), "output", uri)
	}
	return nil
}

func (a *app) writeReport(ctx context.Context, rep *report.Report) error {
	if a.cfg.Output.Report == "" {
		return nil
	}
	uri := storage.Join(a.cfg.Output.Dir, a.cfg.Output.Report)
	return writeTo(ctx, uri, storageOptions(a.cfg), func(w io.Writer) error {
		return rep.Encode(w, report.FormatFor(uri))
	})
}

// writeTo opens uri, runs fn and closes it, keeping the first error.
func writeTo(ctx context.Context, uri string, opts storage.Options, fn func(w io.Writer) error) error {
	out, err := storage.Create(ctx, uri, opts)
	if err != nil {
		return err
	}
	if err := fn(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return lperrors.Wrap(err, lperrors.CodeWriteFailed, "close output").WithContext("uri", uri)
	}
	return nil
}

// printRun prints the summary and the elimination table of a run.
func (a *app) printRun(rep *report.Report) {
	if a.quiet {
		return
	}
	a.out.Summary(tui.RunSummary{
		Events:      int64(rep.Input.Events),
		Traces:      rep.Input.Traces,
		Activities:  rep.Input.Activities,
		Projections: len(rep.Selected()),
		InputSize:   rep.Input.Bytes,
		Duration:    rep.Timings.Total,
		Cached:      rep.Cached,
	})

	rows := make([][]string, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		output := tui.Muted("-")
		if e.Output != "" {
			output = e.Output
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Size),
			e.Removed,
			fmt.Sprintf("%.4f", e.RawEntropy),
			fmt.Sprintf("%.4g", e.AdjustedEntropy),
			output,
		})
	}
	a.out.Section("elimination")
	a.out.Table([]string{"SIZE", "REMOVED", "ENTROPY", "ADJUSTED", "OUTPUT"}, rows)
	if a.cfg.Output.Report != "" {
		a.out.Path("Report", storage.Join(a.cfg.Output.Dir, a.cfg.Output.Report))
	}
}
