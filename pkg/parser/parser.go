// Package parser streams process-mining event data (XES, CSV, JSONL, XLSX)
// into flat events.
package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

// Parser defines the interface for parsing event data.
// Implementations must be safe for concurrent use and must not
// retain references to the output channel after returning.
type Parser interface {
	// Parse reads from r and sends parsed events to out.
	// Events come from pool.Events; the receiver returns them.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatJSONL
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatJSONL:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "json", "jsonl", "ndjson":
		return FormatJSONL
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from a file name. A trailing .gz is
// ignored, so "log.xes.gz" is XES.
func DetectFormat(path string) Format {
	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	return ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsCompressed reports whether path names a gzip file.
func IsCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Config holds common parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// CaseIDColumn names the case identifier column (CSV, JSONL, XLSX).
	CaseIDColumn string

	// ActivityColumn names the activity label column.
	ActivityColumn string

	// TimestampColumn names the timestamp column. Optional.
	TimestampColumn string

	// ResourceColumn names the resource column. Optional.
	ResourceColumn string

	// TimestampFormat is tried before the built-in layouts (Go time layout).
	TimestampFormat string

	// Delimiter is the field delimiter for CSV (default: comma).
	Delimiter byte

	// Lifecycle keeps only XES events with this lifecycle:transition
	// (case-insensitive). Empty keeps every event.
	Lifecycle string

	// Sheet selects the XLSX sheet; the first sheet when empty.
	Sheet string
}

// DefaultConfig returns a Config with XES-style column names.
func DefaultConfig() Config {
	return Config{
		BufferSize:      pool.DefaultBufferSize,
		CaseIDColumn:    "case:concept:name",
		ActivityColumn:  "concept:name",
		TimestampColumn: "time:timestamp",
		ResourceColumn:  "org:resource",
		Delimiter:       ',',
	}
}

// NewParser creates a parser for the given format. Parquet is read through
// DuckDB by the loader and has no streaming parser.
func NewParser(format Format, cfg Config) (Parser, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = pool.DefaultBufferSize
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatXES:
		return NewXESParser(cfg), nil
	case FormatJSONL:
		return NewJSONLParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	default:
		return nil, unsupported(format)
	}
}

// send delivers e or returns it to the pool when ctx is done first.
func send(ctx context.Context, out chan<- *model.Event, e *model.Event) error {
	select {
	case out <- e:
		return nil
	case <-ctx.Done():
		pool.Events.Put(e)
		return lperrors.ContextCanceled("parse", ctx.Err())
	}
}

// aliases lists fallback column names tried after the configured one.
var aliases = map[string][]string{
	"case":      {"case:concept:name", "case_id", "caseid", "case id", "case"},
	"activity":  {"concept:name", "activity", "event", "activity_name"},
	"timestamp": {"time:timestamp", "timestamp", "time", "start_time", "end_time"},
	"resource":  {"org:resource", "resource", "user"},
}

// columnIndex resolves a column by its configured name, then by the aliases
// of role, matching case-insensitively.
func columnIndex(header []string, configured, role string) int {
	lookup := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := lookup[key]; !seen {
			lookup[key] = i
		}
	}
	names := append([]string{configured}, aliases[role]...)
	for _, name := range names {
		if name == "" {
			continue
		}
		if i, ok := lookup[strings.ToLower(name)]; ok {
			return i
		}
	}
	return -1
}

// Columns holds the resolved positions of the event columns of a tabular
// header; -1 marks an absent optional column.
type Columns struct {
	CaseID, Activity, Timestamp, Resource int
}

// ResolveColumns locates the event columns in header. Case and activity
// are required.
func ResolveColumns(header []string, cfg Config) (Columns, error) {
	c := Columns{
		CaseID:    columnIndex(header, cfg.CaseIDColumn, "case"),
		Activity:  columnIndex(header, cfg.ActivityColumn, "activity"),
		Timestamp: columnIndex(header, cfg.TimestampColumn, "timestamp"),
		Resource:  columnIndex(header, cfg.ResourceColumn, "resource"),
	}
	if c.CaseID < 0 {
		return c, lperrors.MissingColumn(cfg.CaseIDColumn, header)
	}
	if c.Activity < 0 {
		return c, lperrors.MissingColumn(cfg.ActivityColumn, header)
	}
	return c, nil
}

// field returns fields[i] or "" when i is out of range.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}
