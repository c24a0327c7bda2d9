package writer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
)

// ParquetWriter writes one row per event using Apache Arrow. Rows follow
// trace order and event order within each trace.
type ParquetWriter struct {
	cfg    Config
	schema *arrow.Schema
	writer *pqarrow.FileWriter

	caseIDBuilder    *array.StringBuilder
	positionBuilder  *array.Int32Builder
	activityBuilder  *array.StringBuilder
	timestampBuilder *array.TimestampBuilder
	resourceBuilder  *array.StringBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// EventSchema is the Arrow schema of written events. Timestamps are UTC
// nanoseconds and null when unknown.
func EventSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "case_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "position", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "activity", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "timestamp", Type: &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}, Nullable: true},
		{Name: "resource", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	allocator := memory.NewGoAllocator()
	schema := EventSchema()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	case CompressionLZ4:
		codec = compress.Codecs.Lz4
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024), // 1MB
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, writerOnly{output}, writerProps, arrowProps)
	if err != nil {
		return nil, writeError(fmt.Errorf("create parquet writer: %w", err), FormatParquet)
	}

	tsType := schema.Field(3).Type.(*arrow.TimestampType)
	pw := &ParquetWriter{
		cfg:              cfg,
		schema:           schema,
		writer:           writer,
		caseIDBuilder:    array.NewStringBuilder(allocator),
		positionBuilder:  array.NewInt32Builder(allocator),
		activityBuilder:  array.NewStringBuilder(allocator),
		timestampBuilder: array.NewTimestampBuilder(allocator, tsType),
		resourceBuilder:  array.NewStringBuilder(allocator),
	}
	pw.caseIDBuilder.Reserve(cfg.BatchSize)
	pw.positionBuilder.Reserve(cfg.BatchSize)
	pw.activityBuilder.Reserve(cfg.BatchSize)
	pw.timestampBuilder.Reserve(cfg.BatchSize)
	pw.resourceBuilder.Reserve(cfg.BatchSize)

	return pw, nil
}

// Write implements the Writer interface.
func (w *ParquetWriter) Write(ctx context.Context, log *eventlog.Log) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tr := range log.Traces {
		if err := ctx.Err(); err != nil {
			return lperrors.ContextCanceled("write", err)
		}
		for i, e := range tr.Events {
			w.appendEvent(tr.ID, i, e)
			w.rowCount++
			if w.rowCount >= w.cfg.BatchSize {
				if err := w.flushBatch(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *ParquetWriter) appendEvent(caseID string, position int, e eventlog.Event) {
	w.caseIDBuilder.Append(caseID)
	w.positionBuilder.Append(int32(position))
	w.activityBuilder.Append(string(e.Activity))
	if e.Timestamp.IsZero() {
		w.timestampBuilder.AppendNull()
	} else {
		w.timestampBuilder.Append(arrow.Timestamp(e.Timestamp.UnixNano()))
	}
	if e.Resource != "" {
		w.resourceBuilder.Append(e.Resource)
	} else {
		w.resourceBuilder.AppendNull()
	}
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	columns := []arrow.Array{
		w.caseIDBuilder.NewArray(),
		w.positionBuilder.NewArray(),
		w.activityBuilder.NewArray(),
		w.timestampBuilder.NewArray(),
		w.resourceBuilder.NewArray(),
	}
	defer func() {
		for _, c := range columns {
			c.Release()
		}
	}()

	batch := array.NewRecord(w.schema, columns, int64(w.rowCount))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return writeError(fmt.Errorf("write record batch: %w", err), FormatParquet)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Close flushes remaining rows and writes the Parquet footer.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return writeError(fmt.Errorf("close parquet writer: %w", err), FormatParquet)
	}

	w.caseIDBuilder.Release()
	w.positionBuilder.Release()
	w.activityBuilder.Release()
	w.timestampBuilder.Release()
	w.resourceBuilder.Release()
	return nil
}

// writerOnly hides Close so closing the Parquet writer leaves the sink open.
type writerOnly struct {
	io.Writer
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
