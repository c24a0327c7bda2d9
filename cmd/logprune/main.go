// logprune - entropy-guided activity filtering for process mining event logs.
// Finds, for every size, the activity subset whose projected log has the most
// regular control flow, and writes those projections.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/logprune/pkg/config"
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/telemetry"
	"github.com/logflow/logprune/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	quiet      bool
)

// The app shared by all commands, set up in PersistentPreRunE.
var current *app

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, rootCmd)
	stop()
	if err != nil {
		tui.NewPrinter(os.Stderr).Error(err)
		if verbose {
			var lpErr *lperrors.LogPruneError
			if errors.As(err, &lpErr) {
				fmt.Fprint(os.Stderr, lpErr.FormatStack())
			}
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logprune",
	Short: "logprune - entropy-guided activity filtering for event logs",
	Long: `logprune removes activities from a process mining event log one at a time,
always dropping the activity whose removal leaves the most regular control flow.
Every intermediate activity set is reported and projected.

Inputs: XES, CSV, JSONL, XLSX, Parquet (optionally .gz, local or s3://).
Outputs: XES or Parquet projections plus a YAML/JSON run report.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Extra config file, applied after the standard locations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "No progress bars or summaries")

	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads configuration and installs logging and tracing.
func setup(cmd *cobra.Command, args []string) error {
	manager := config.NewManager()
	if err := manager.Load(); err != nil {
		return err
	}
	if configFile != "" {
		if err := manager.LoadFile(configFile); err != nil {
			return err
		}
	}
	cfg := manager.Get()
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	tcfg := telemetryConfig(cfg)
	shutdown, err := telemetry.Setup(cmd.Context(), tcfg)
	if err != nil {
		// Tracing is optional; keep running without it.
		logger.Warn("telemetry disabled", "endpoint", tcfg.Endpoint, "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	current = &app{
		cfg:      cfg,
		manager:  manager,
		logger:   logger,
		out:      tui.NewPrinter(os.Stdout),
		progress: !quiet && isTerminal(os.Stderr),
		quiet:    quiet,
		shutdown: shutdown,
	}
	logger.Debug("config loaded", "files", manager.GetPaths())
	return nil
}

// execute runs cmd and always tears the app down afterwards. Cobra skips
// post-run hooks when a command fails, and failed runs still need their
// spans flushed and the cache closed.
func execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if terr := teardown(ctx); terr != nil {
		if err == nil {
			return terr
		}
		slog.Warn("teardown failed", "error", terr)
	}
	return err
}

func teardown(ctx context.Context) error {
	if current == nil {
		return nil
	}
	return current.Close(ctx)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
