package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/parser"
)

const ordersCSV = `case_id,activity,timestamp
o2,Create,2024-01-01T09:00:00Z
o1,Create,2024-01-01T08:00:00Z
o1,Ship,2024-01-01T12:00:00Z
o1,Pay,2024-01-01T10:00:00Z
o2,Cancel,2024-01-01T09:30:00Z
`

func sequence(tr eventlog.Trace) []string {
	out := make([]string, len(tr.Events))
	for i, e := range tr.Events {
		out[i] = string(e.Activity)
	}
	return out
}

func TestRead_GroupsAndSorts(t *testing.T) {
	log, stats, err := Read(context.Background(), strings.NewReader(ordersCSV), "orders", parser.FormatCSV, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "orders", log.Name)
	require.Equal(t, 2, log.Len())
	assert.Equal(t, "o2", log.Traces[0].ID, "traces keep first-seen order")
	assert.Equal(t, []string{"Create", "Cancel"}, sequence(log.Traces[0]))
	assert.Equal(t, []string{"Create", "Pay", "Ship"}, sequence(log.Traces[1]))

	assert.Equal(t, int64(5), stats.Events)
	assert.Equal(t, 2, stats.Traces)
	assert.Equal(t, int64(len(ordersCSV)), stats.BytesRead)
}

func TestRead_ArrivalOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.SortByTimestamp = false

	log, _, err := Read(context.Background(), strings.NewReader(ordersCSV), "orders", parser.FormatCSV, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Create", "Ship", "Pay"}, sequence(log.Traces[1]))
}

func TestRead_Progress(t *testing.T) {
	opts := DefaultOptions()
	opts.ProgressEvery = 2
	var calls []int64
	opts.Progress = func(n int64) { calls = append(calls, n) }

	_, _, err := Read(context.Background(), strings.NewReader(ordersCSV), "orders", parser.FormatCSV, opts)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5}, calls)
}

func TestRead_ParserError(t *testing.T) {
	_, _, err := Read(context.Background(), strings.NewReader("id,when\n1,2\n"), "bad", parser.FormatCSV, DefaultOptions())
	require.Error(t, err)
	assert.True(t, lperrors.IsCode(err, lperrors.CodeMissingColumn))
}

func TestLoad_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(ordersCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	log, stats, err := Load(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "orders", log.Name)
	assert.Equal(t, parser.FormatCSV, stats.Format)
	assert.Equal(t, 2, log.Len())
}

func TestLoad_XES(t *testing.T) {
	xes := `<log><trace><string key="concept:name" value="t1"/>
<event><string key="concept:name" value="a"/></event>
<event><string key="concept:name" value="b"/></event>
</trace></log>`
	path := filepath.Join(t.TempDir(), "tiny.xes")
	require.NoError(t, os.WriteFile(path, []byte(xes), 0o644))

	log, _, err := Load(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, "t1", log.Traces[0].ID)
	assert.Equal(t, []string{"a", "b"}, sequence(log.Traces[0]))
}

func TestRead_XESTracesWithSameName(t *testing.T) {
	xes := `<log>
<trace><string key="concept:name" value="c"/>
<event><string key="concept:name" value="A"/></event>
<event><string key="concept:name" value="B"/></event>
</trace>
<trace><string key="concept:name" value="c"/>
<event><string key="concept:name" value="X"/></event>
<event><string key="concept:name" value="Y"/></event>
</trace>
<trace>
<event><string key="concept:name" value="P"/></event>
<string key="concept:name" value="named-late"/>
<event><string key="concept:name" value="Q"/></event>
</trace>
</log>`

	log, stats, err := Read(context.Background(), strings.NewReader(xes), "dup", parser.FormatXES, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, log.Len())
	assert.Equal(t, 3, stats.Traces)

	assert.Equal(t, "c", log.Traces[0].ID)
	assert.Equal(t, []string{"A", "B"}, sequence(log.Traces[0]))
	assert.Equal(t, "c", log.Traces[1].ID)
	assert.Equal(t, []string{"X", "Y"}, sequence(log.Traces[1]))
	assert.Equal(t, "named-late", log.Traces[2].ID)
	assert.Equal(t, []string{"P", "Q"}, sequence(log.Traces[2]))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Load(context.Background(), filepath.Join(dir, "missing.xes"), DefaultOptions())
	assert.True(t, lperrors.IsCode(err, lperrors.CodeFileNotFound))

	_, _, err = Load(context.Background(), filepath.Join(dir, "notes.txt"), DefaultOptions())
	assert.True(t, lperrors.IsCode(err, lperrors.CodeUnsupportedFormat))
}

func TestLogName(t *testing.T) {
	assert.Equal(t, "orders", LogName("data/orders.xes.gz"))
	assert.Equal(t, "orders", LogName("orders.csv"))
	assert.Equal(t, "raw", LogName("/tmp/raw"))
}

func TestDuckDBEngine_CSV(t *testing.T) {
	if os.Getenv("LOGPRUNE_TEST_DUCKDB") == "" {
		t.Skip("set LOGPRUNE_TEST_DUCKDB to run DuckDB tests")
	}

	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte(ordersCSV), 0o644))

	opts := DefaultOptions()
	opts.Engine = EngineDuckDB
	log, stats, err := Load(context.Background(), path, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Events)
	require.Equal(t, 2, log.Len())
	assert.Equal(t, []string{"Create", "Pay", "Ship"}, sequence(log.Traces[1]))
}
