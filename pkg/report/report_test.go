package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/filter"
)

func sampleLog() *eventlog.Log {
	seq := func(labels ...string) []eventlog.Activity {
		out := make([]eventlog.Activity, len(labels))
		for i, l := range labels {
			out[i] = eventlog.Activity(l)
		}
		return out
	}
	var sequences [][]eventlog.Activity
	for i := 0; i < 4; i++ {
		sequences = append(sequences, seq("a", "b", "c", "d"))
	}
	sequences = append(sequences, seq("a", "x", "b", "c", "d"))
	return eventlog.NewLog("sample", sequences...)
}

func sampleReport(t *testing.T) *Report {
	t.Helper()
	log := sampleLog()
	res, err := filter.Search(context.Background(), log)
	require.NoError(t, err)

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := New(DescribeLog("file:///tmp/sample.xes", "xes", log), started)
	r.Workers = 2
	r.SetResult(res)
	r.Timings = Timings{Load: 3 * time.Millisecond, Search: 40 * time.Millisecond, Total: time.Second}
	return r
}

func TestNew(t *testing.T) {
	r := sampleReport(t)

	_, err := uuid.Parse(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Input.Traces)
	assert.Equal(t, 21, r.Input.Events)
	assert.Equal(t, 5, r.Input.Activities)
	assert.NotEqual(t, r.ID, sampleReport(t).ID)
}

func TestSetResult(t *testing.T) {
	r := sampleReport(t)

	require.Len(t, r.Entries, 5)
	for i, e := range r.Entries {
		assert.Equal(t, 4-i, e.Size)
		assert.Len(t, e.Activities, e.Size)
		assert.Equal(t, e.Size > filter.DefaultMinSize, e.Selected)
	}
	assert.Equal(t, "x", r.Entries[0].Removed)
	assert.Len(t, r.Selected(), 2)
}

func TestSetOutput(t *testing.T) {
	r := sampleReport(t)
	r.SetOutput(3, 5, "out/sample-3.xes")
	r.SetOutput(99, 1, "ignored")

	for _, e := range r.Entries {
		if e.Size == 3 {
			assert.Equal(t, "out/sample-3.xes", e.Output)
			assert.Equal(t, 5, e.Traces)
		} else {
			assert.Empty(t, e.Output)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			r := sampleReport(t)

			var buf bytes.Buffer
			require.NoError(t, r.Encode(&buf, format))

			back, err := Decode(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, r.ID, back.ID)
			assert.True(t, r.StartedAt.Equal(back.StartedAt))
			assert.Equal(t, r.Input, back.Input)
			assert.Equal(t, r.Timings, back.Timings)
			assert.Equal(t, r.Entries, back.Entries)
		})
	}
}

func TestEncodeYAMLIsReadable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport(t).Encode(&buf, FormatYAML))

	out := buf.String()
	assert.Contains(t, out, "search: 40ms")
	assert.Contains(t, out, "activities: [a, b, c, d]")
	assert.True(t, strings.HasPrefix(out, "id: "))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"yaml", FormatYAML},
		{"YML", FormatYAML},
		{"", FormatYAML},
		{"json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFormat("toml")
	assert.True(t, lperrors.IsCode(err, lperrors.CodeInvalidConfig))

	assert.Equal(t, FormatJSON, FormatFor("out/report.JSON"))
	assert.Equal(t, FormatYAML, FormatFor("out/report.yaml"))
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader("{"), FormatJSON)
	assert.True(t, lperrors.IsCode(err, lperrors.CodeParseFailed))
}
