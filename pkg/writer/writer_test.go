package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/parser"
)

func sampleLog() *eventlog.Log {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return &eventlog.Log{
		Name: "orders <k=2>",
		Traces: []eventlog.Trace{
			{ID: "o1", Events: []eventlog.Event{
				{Activity: "Create", Timestamp: ts, Resource: "alice"},
				{Activity: `Ship "express" & track`},
			}},
			{ID: "o2", Events: []eventlog.Event{{Activity: "Create"}}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("Parquet")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	assert.Equal(t, ".parquet", f.Extension())

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXES, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}

func TestXESWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLog(context.Background(), &buf, sampleLog(), DefaultConfig()))
	assert.True(t, strings.HasSuffix(buf.String(), "</log>\n"))

	p, err := parser.NewParser(parser.FormatXES, parser.DefaultConfig())
	require.NoError(t, err)

	out := make(chan *model.Event, 8)
	require.NoError(t, p.Parse(context.Background(), &buf, out))
	close(out)

	var got []string
	var first model.Event
	for e := range out {
		if len(got) == 0 {
			first = model.Event{CaseID: append([]byte(nil), e.CaseID...), Resource: append([]byte(nil), e.Resource...), Timestamp: e.Timestamp}
		}
		got = append(got, string(e.CaseID)+":"+string(e.Activity))
		pool.Events.Put(e)
	}
	assert.Equal(t, []string{"o1:Create", `o1:Ship "express" & track`, "o2:Create"}, got)
	assert.Equal(t, "alice", string(first.Resource))
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC).UnixNano(), first.Timestamp)
}

func TestXESWriter_EmptyLog(t *testing.T) {
	var buf bytes.Buffer
	w := NewXESWriter(&buf)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Contains(t, buf.String(), "<log ")
	assert.Equal(t, 1, strings.Count(buf.String(), "</log>"))
}

func TestParquetWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatParquet
	cfg.BatchSize = 2

	w, err := New(&buf, cfg)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), sampleLog()))
	require.NoError(t, w.Close())
	assert.Equal(t, int64(3), w.(*ParquetWriter).RowsWritten())

	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), nil,
		pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, int64(5), table.NumCols())
	assert.Equal(t, "case_id", table.Schema().Field(0).Name)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, CompressionZstd, ParseCompression("ZSTD"))
	assert.Equal(t, CompressionNone, ParseCompression("brotli"))
	assert.Equal(t, "snappy", CompressionSnappy.String())
}
