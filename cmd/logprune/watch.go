package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/storage"
	"github.com/logflow/logprune/pkg/watch"
)

var debounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <input>",
	Short: "Re-run filter whenever the input file changes",
	Long: `Run filter once, then again every time the input file is written. Identical
logs are answered from the result cache, so touching a file without changing
its traces only rewrites the projections.

Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addInputFlags(watchCmd)
	addOutputFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", 0, "Quiet period before a change triggers a run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a := current
	input := args[0]

	loc, err := storage.Parse(input)
	if err != nil {
		return err
	}
	if loc.IsRemote() {
		return lperrors.New(lperrors.CodeUnsupportedFormat, "watch needs a local input file").
			WithContext("input", input)
	}

	debounce := a.cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce = debounceFlag
	}
	w, err := watch.NewWatcher(debounce)
	if err != nil {
		return err
	}
	if err := w.Watch(loc.Key); err != nil {
		w.Close()
		return err
	}

	run := func(ctx context.Context, path string) error {
		rep, err := a.runFilter(ctx, input)
		if err != nil {
			return err
		}
		a.printRun(rep)
		return nil
	}
	w.OnChange = run
	w.OnError = func(path string, err error) {
		a.logger.Error("watch run failed", "path", path, "error", err)
		if !a.quiet {
			a.out.Error(err)
		}
	}

	// First run up front; a failing input is reported and still watched.
	if err := run(cmd.Context(), input); err != nil {
		w.OnError(input, err)
	}
	if !a.quiet {
		a.out.Path("Watching", input)
	}

	err = w.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
