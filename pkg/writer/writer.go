// Package writer serialises event logs as XES or Parquet.
package writer

import (
	"context"
	"io"
	"strings"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
)

// Writer writes whole logs to one output.
type Writer interface {
	// Write appends the traces of log.
	Write(ctx context.Context, log *eventlog.Log) error

	// Close flushes buffered data and finishes the output. It does not
	// close the underlying io.Writer.
	Close() error
}

// Format is an output format.
type Format uint8

const (
	FormatXES Format = iota
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatParquet {
		return "parquet"
	}
	return "xes"
}

// Extension returns the file extension for the format, with the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "xes":
		return FormatXES, nil
	case "parquet", "pq":
		return FormatParquet, nil
	default:
		return 0, lperrors.New(lperrors.CodeUnsupportedFormat, "unsupported output format").
			WithContext("format", s)
	}
}

// Config holds writer configuration.
type Config struct {
	// Format selects the writer.
	Format Format

	// BatchSize is the number of events per Arrow record batch (Parquet).
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config writing XES, with Snappy for Parquet.
func DefaultConfig() Config {
	return Config{
		Format:      FormatXES,
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}

// New creates a writer for cfg.Format on out.
func New(out io.Writer, cfg Config) (Writer, error) {
	switch cfg.Format {
	case FormatParquet:
		return NewParquetWriter(out, cfg)
	default:
		return NewXESWriter(out), nil
	}
}

// WriteLog writes log to out as one complete document.
func WriteLog(ctx context.Context, out io.Writer, log *eventlog.Log, cfg Config) error {
	w, err := New(out, cfg)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, log); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func writeError(err error, format Format) error {
	return lperrors.Wrap(err, lperrors.CodeWriteFailed, "failed to write log").
		WithContext("format", format.String())
}
