package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/logprune/pkg/cache"
	"github.com/logflow/logprune/pkg/config"
	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/loader"
	"github.com/logflow/logprune/pkg/parser"
	"github.com/logflow/logprune/pkg/storage"
	"github.com/logflow/logprune/pkg/storage/s3"
	"github.com/logflow/logprune/pkg/telemetry"
	"github.com/logflow/logprune/pkg/tui"
	"github.com/logflow/logprune/pkg/writer"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	manager  *config.Manager
	logger   *slog.Logger
	out      *tui.Printer
	progress bool
	quiet    bool
	shutdown telemetry.Shutdown

	results    *cache.Results
	closeCache func() error
}

// Close releases the cache and flushes pending spans.
func (a *app) Close(ctx context.Context) error {
	var errs lperrors.MultiError
	if a.closeCache != nil {
		errs.Add(a.closeCache())
		a.closeCache = nil
	}
	if a.shutdown != nil {
		// The command context may already be cancelled by a signal.
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		errs.Add(a.shutdown(flushCtx))
		a.shutdown = nil
	}
	return errs.Combined()
}

// Input flags shared by the commands that read a log.
var (
	inputFormat     string
	engineFlag      string
	caseIDColumn    string
	activityColumn  string
	timestampColumn string
	resourceColumn  string
	timestampFormat string
	delimiterFlag   string
	lifecycleFlag   string
	sheetFlag       string
	noSort          bool
)

// Output and search flags of filter and watch.
var (
	outputDir       string
	outputFormat    string
	compressionFlag string
	reportName      string
	workersFlag     int
	minSizeFlag     int
	cacheBackend    string
)

func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&inputFormat, "input-format", "f", "", "Input format (xes, csv, jsonl, xlsx, parquet) - auto-detected if not specified")
	f.StringVar(&engineFlag, "engine", "", "Reader for CSV input (stream, duckdb)")
	f.StringVar(&caseIDColumn, "case-id", "", "Case ID column name")
	f.StringVar(&activityColumn, "activity", "", "Activity column name")
	f.StringVar(&timestampColumn, "timestamp", "", "Timestamp column name")
	f.StringVar(&resourceColumn, "resource", "", "Resource column name")
	f.StringVar(&timestampFormat, "timestamp-format", "", "Timestamp format (Go time layout) tried before the built-in ones")
	f.StringVar(&delimiterFlag, "delimiter", "", "CSV field delimiter")
	f.StringVar(&lifecycleFlag, "lifecycle", "", "Keep only XES events with this lifecycle:transition (e.g. complete)")
	f.StringVar(&sheetFlag, "sheet", "", "XLSX sheet name")
	f.BoolVar(&noSort, "no-sort", false, "Keep file order instead of sorting each trace by timestamp")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&outputDir, "output", "o", "", "Output directory (local path or s3://bucket/prefix)")
	f.StringVar(&outputFormat, "format", "", "Projection format (xes, parquet)")
	f.StringVar(&compressionFlag, "compression", "", "Parquet compression (none, snappy, gzip, zstd, lz4)")
	f.StringVar(&reportName, "report", "", "Report file name inside the output directory; empty string disables")
	f.IntVarP(&workersFlag, "workers", "w", 0, "Candidate evaluations per step run in parallel (0 = one per CPU)")
	f.IntVar(&minSizeFlag, "min-size", 0, "Only activity sets larger than this are projected")
	f.StringVar(&cacheBackend, "cache", "", "Result cache (none, memory, redis)")
}

// applyFlags copies explicitly set flags over cfg, the last configuration layer.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	str := func(name string, src string, dst *string) {
		if changed(name) {
			*dst = src
		}
	}

	str("input-format", inputFormat, &cfg.Input.Format)
	str("engine", engineFlag, &cfg.Input.Engine)
	str("case-id", caseIDColumn, &cfg.Input.CaseID)
	str("activity", activityColumn, &cfg.Input.Activity)
	str("timestamp", timestampColumn, &cfg.Input.Timestamp)
	str("resource", resourceColumn, &cfg.Input.Resource)
	str("timestamp-format", timestampFormat, &cfg.Input.TimestampFormat)
	str("delimiter", delimiterFlag, &cfg.Input.Delimiter)
	str("lifecycle", lifecycleFlag, &cfg.Input.Lifecycle)
	str("sheet", sheetFlag, &cfg.Input.Sheet)
	if changed("no-sort") {
		cfg.Input.Sort = !noSort
	}

	str("output", outputDir, &cfg.Output.Dir)
	str("format", outputFormat, &cfg.Output.Format)
	str("compression", compressionFlag, &cfg.Output.Compression)
	str("report", reportName, &cfg.Output.Report)
	str("cache", cacheBackend, &cfg.Cache.Backend)
	if changed("workers") {
		cfg.Search.Workers = workersFlag
	}
	if changed("min-size") {
		cfg.Search.MinSize = minSizeFlag
	}
	return cfg.Validate()
}

// --- configuration to package options ---

func parserConfig(cfg *config.Config) parser.Config {
	pc := parser.DefaultConfig()
	pc.CaseIDColumn = cfg.Input.CaseID
	pc.ActivityColumn = cfg.Input.Activity
	pc.TimestampColumn = cfg.Input.Timestamp
	pc.ResourceColumn = cfg.Input.Resource
	pc.TimestampFormat = cfg.Input.TimestampFormat
	pc.Lifecycle = cfg.Input.Lifecycle
	pc.Sheet = cfg.Input.Sheet
	if len(cfg.Input.Delimiter) == 1 {
		pc.Delimiter = cfg.Input.Delimiter[0]
	}
	return pc
}

func loaderOptions(cfg *config.Config) loader.Options {
	opts := loader.DefaultOptions()
	opts.Parser = parserConfig(cfg)
	opts.Format = parser.ParseFormat(cfg.Input.Format)
	opts.Engine = loader.Engine(cfg.Input.Engine)
	opts.SortByTimestamp = cfg.Input.Sort
	return opts
}

func writerConfig(cfg *config.Config) (writer.Config, error) {
	format, err := writer.ParseFormat(cfg.Output.Format)
	if err != nil {
		return writer.Config{}, err
	}
	wc := writer.DefaultConfig()
	wc.Format = format
	wc.Compression = writer.ParseCompression(cfg.Output.Compression)
	return wc, nil
}

func storageOptions(cfg *config.Config) storage.Options {
	sc := s3.DefaultConfig(cfg.Storage.S3.Region)
	sc.Endpoint = cfg.Storage.S3.Endpoint
	sc.UsePathStyle = cfg.Storage.S3.PathStyle
	sc.AccessKeyID = cfg.Storage.S3.AccessKeyID
	sc.SecretAccessKey = cfg.Storage.S3.SecretAccessKey
	return storage.Options{S3: sc}
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig("logprune")
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Environment = cfg.Telemetry.Environment
	tc.SamplingRatio = cfg.Telemetry.SamplingRatio
	tc.Headers = cfg.Telemetry.Headers
	tc.ServiceVersion = version
	return tc
}

func workers(cfg *config.Config) int {
	if cfg.Search.Workers > 0 {
		return cfg.Search.Workers
	}
	return runtime.NumCPU()
}

// openCache connects the configured result cache on first use. A cache
// that cannot be reached is logged and skipped.
func (a *app) openCache(ctx context.Context) *cache.Results {
	if a.results != nil || a.closeCache != nil {
		return a.results
	}

	var c cache.Cache
	switch a.cfg.Cache.Backend {
	case "memory":
		c = cache.NewMemoryCache(a.cfg.Cache.TTL)
	case "redis":
		rc := cache.DefaultRedisConfig(a.cfg.Cache.Redis.Address)
		rc.Password = a.cfg.Cache.Redis.Password
		rc.Database = a.cfg.Cache.Redis.Database
		rc.TTL = a.cfg.Cache.TTL
		if a.cfg.Cache.Redis.Prefix != "" {
			rc.Prefix = a.cfg.Cache.Redis.Prefix
		}
		redisCache, err := cache.NewRedisCache(ctx, rc)
		if err != nil {
			a.logger.Warn("result cache unavailable", "backend", "redis", "address", rc.Address, "error", err)
			a.closeCache = func() error { return nil }
			return nil
		}
		c = redisCache
	default:
		a.closeCache = func() error { return nil }
		return nil
	}

	a.results = cache.NewResults(c)
	a.closeCache = c.Close
	return a.results
}

// loadLog fetches uri if remote and reads it into a log.
func (a *app) loadLog(ctx context.Context, uri string) (*eventlog.Log, *loader.Stats, error) {
	path, cleanup, err := storage.Fetch(ctx, uri, storageOptions(a.cfg))
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	opts := loaderOptions(a.cfg)
	if a.progress {
		bar := tui.ShowProgress(os.Stderr, -1, "loading events")
		defer bar.Finish()
		opts.Progress = func(n int64) { bar.Set64(n) }
	}

	log, stats, err := loader.Load(ctx, path, opts)
	if err != nil {
		return nil, nil, err
	}
	log.Name = loader.LogName(uri)
	a.logger.Debug("log loaded",
		"input", uri,
		"format", stats.Format.String(),
		"traces", stats.Traces,
		"events", stats.Events,
		"bytes", stats.BytesRead,
		"duration", stats.Duration)
	return log, stats, nil
}

// parseActivities splits a comma-separated activity list.
func parseActivities(s string) eventlog.ActivitySet {
	var acts []eventlog.Activity
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			acts = append(acts, eventlog.Activity(part))
		}
	}
	return eventlog.NewActivitySet(acts...)
}
