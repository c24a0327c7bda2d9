package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

type parsed struct {
	caseID, activity, resource, lifecycle string
	ts                                    int64
	trace                                 int
}

// collect runs p over input and copies every event out of the pool.
func collect(t *testing.T, p Parser, input string) ([]parsed, error) {
	t.Helper()
	out := make(chan *model.Event, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- p.Parse(context.Background(), strings.NewReader(input), out)
		close(out)
	}()

	var events []parsed
	for e := range out {
		events = append(events, parsed{
			caseID:    string(e.CaseID),
			activity:  string(e.Activity),
			resource:  string(e.Resource),
			lifecycle: string(e.Lifecycle),
			ts:        e.Timestamp,
			trace:     e.Trace,
		})
		pool.Events.Put(e)
	}
	return events, <-errc
}

func mustParser(t *testing.T, f Format, cfg Config) Parser {
	t.Helper()
	p, err := NewParser(f, cfg)
	if err != nil {
		t.Fatalf("NewParser(%s): %v", f, err)
	}
	return p
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"log.xes", FormatXES},
		{"log.XES.gz", FormatXES},
		{"data/events.csv", FormatCSV},
		{"events.ndjson", FormatJSONL},
		{"sheet.xlsx", FormatXLSX},
		{"table.parquet", FormatParquet},
		{"notes.txt", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
	if !IsCompressed("a.csv.gz") || IsCompressed("a.csv") {
		t.Error("IsCompressed mismatch")
	}
}

func TestNewParser_Unsupported(t *testing.T) {
	_, err := NewParser(FormatParquet, DefaultConfig())
	if !lperrors.IsCode(err, lperrors.CodeUnsupportedFormat) || !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

const sampleXES = `<?xml version="1.0" encoding="UTF-8"?>
<log xes.version="1.0">
  <global scope="event">
    <string key="concept:name" value="__INVALID__"/>
  </global>
  <trace>
    <string key="concept:name" value="c1"/>
    <event>
      <string key="concept:name" value="Register &amp; Check"/>
      <date key="time:timestamp" value="2024-01-01T10:00:00.000+00:00"/>
      <string key="org:resource" value="alice"/>
      <string key="lifecycle:transition" value="complete"/>
    </event>
    <event>
      <string key="concept:name" value="Approve"/>
      <list key="approvals">
        <string key="concept:name" value="nested"/>
      </list>
      <string key="lifecycle:transition" value="start"/>
    </event>
  </trace>
  <trace>
    <event>
      <string key='concept:name' value='Archive'/>
      <string key="lifecycle:transition" value="COMPLETE"/>
    </event>
  </trace>
</log>`

func TestXESParser(t *testing.T) {
	events, err := collect(t, mustParser(t, FormatXES, DefaultConfig()), sampleXES)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	first := events[0]
	if first.caseID != "c1" || first.activity != "Register & Check" || first.resource != "alice" {
		t.Errorf("unexpected first event %+v", first)
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).UnixNano()
	if first.ts != want {
		t.Errorf("timestamp = %d, want %d", first.ts, want)
	}
	if events[1].activity != "Approve" {
		t.Errorf("nested attribute leaked into event: %+v", events[1])
	}
	// The second trace has no name and is numbered by position.
	if events[2].caseID != "2" || events[2].activity != "Archive" {
		t.Errorf("unexpected third event %+v", events[2])
	}
}

func TestXESParser_LifecycleFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lifecycle = "complete"

	events, err := collect(t, mustParser(t, FormatXES, cfg), sampleXES)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 complete events, got %d", len(events))
	}
	if events[0].activity != "Register & Check" || events[1].activity != "Archive" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestXESParser_TraceElements(t *testing.T) {
	input := `<log>
  <trace>
    <string key="concept:name" value="c"/>
    <event><string key="concept:name" value="A"/></event>
    <event><string key="concept:name" value="B"/></event>
  </trace>
  <trace>
    <string key="concept:name" value="c"/>
    <event><string key="concept:name" value="X"/></event>
  </trace>
  <trace>
    <event><string key="concept:name" value="Y"/></event>
    <string key="concept:name" value="late"/>
    <event><string key="concept:name" value="Z"/></event>
  </trace>
  <trace/>
</log>`

	events, err := collect(t, mustParser(t, FormatXES, DefaultConfig()), input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []parsed{
		{caseID: "c", activity: "A", trace: 1},
		{caseID: "c", activity: "B", trace: 1},
		{caseID: "c", activity: "X", trace: 2},
		{caseID: "late", activity: "Y", trace: 3},
		{caseID: "late", activity: "Z", trace: 3},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestXESParser_GreaterThanInValue(t *testing.T) {
	input := `<log><trace>
<string key="concept:name" value="x > y"/>
<event><string key="concept:name" value="a > b"/></event>
<event><string key='concept:name' value='c >= "d"'/></event>
</trace></log>`

	events, err := collect(t, mustParser(t, FormatXES, DefaultConfig()), input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].activity != "a > b" || events[0].caseID != "x > y" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].activity != `c >= "d"` {
		t.Errorf("unexpected second event %+v", events[1])
	}
}

func TestXESParser_Truncated(t *testing.T) {
	input := `<log><trace><event><string key="concept:name" value="a"/>`
	_, err := collect(t, mustParser(t, FormatXES, DefaultConfig()), input)
	if !lperrors.IsCode(err, lperrors.CodeParseFailed) || !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncated input, got %v", err)
	}

	// A closed event in an unclosed trace is truncated too.
	input = `<log><trace><event><string key="concept:name" value="a"/></event>`
	_, err = collect(t, mustParser(t, FormatXES, DefaultConfig()), input)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncated trace, got %v", err)
	}
}

func TestCSVParser(t *testing.T) {
	input := "\xEF\xBB\xBFCase ID,Activity,Timestamp,Resource\r\n" +
		"1,\"Register, online\",2024-01-01 10:00:00,alice\r\n" +
		"1,\"Say \"\"hi\"\"\",not-a-time,bob\n" +
		"\n" +
		"2\n" +
		"2,Approve,2024-01-02T08:30:00Z,"

	events, err := collect(t, mustParser(t, FormatCSV, DefaultConfig()), input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].activity != "Register, online" || events[0].resource != "alice" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[0].ts != time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).UnixNano() {
		t.Errorf("unexpected timestamp %d", events[0].ts)
	}
	if events[1].activity != `Say "hi"` || events[1].ts != 0 {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if events[2].caseID != "2" || events[2].resource != "" {
		t.Errorf("unexpected third event %+v", events[2])
	}
}

func TestCSVParser_MissingColumn(t *testing.T) {
	_, err := collect(t, mustParser(t, FormatCSV, DefaultConfig()), "id,when\n1,2024-01-01\n")
	if !lperrors.IsCode(err, lperrors.CodeMissingColumn) {
		t.Fatalf("expected missing column, got %v", err)
	}
}

func TestCSVParser_Delimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delimiter = ';'
	cfg.CaseIDColumn = "trace"
	cfg.ActivityColumn = "step"

	events, err := collect(t, mustParser(t, FormatCSV, cfg), "trace;step\nA;x\nA;y\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 || events[1].activity != "y" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestCSVScanner(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "", "c"}},
		{"a,b,", []string{"a", "b", ""}},
		{`"x,y",z`, []string{"x,y", "z"}},
		{`"a""b"`, []string{`a"b`}},
		{`"open`, []string{"open"}},
	}
	s := NewCSVScanner(',')
	for _, tt := range tests {
		got := s.ScanLine([]byte(tt.line))
		if len(got) != len(tt.want) {
			t.Errorf("ScanLine(%q) = %q, want %q", tt.line, got, tt.want)
			continue
		}
		for i := range got {
			if string(got[i]) != tt.want[i] {
				t.Errorf("ScanLine(%q)[%d] = %q, want %q", tt.line, i, got[i], tt.want[i])
			}
		}
	}
}

func TestJSONLParser(t *testing.T) {
	input := `{"case_id": "c1", "activity": "a", "timestamp": "2024-01-01T00:00:00Z"}
not json
{"case_id": 7, "activity": "b", "resource": "bot"}
{"activity": "orphan"}
{"case:concept:name": "c2", "concept:name": "c"}`

	events, err := collect(t, mustParser(t, FormatJSONL, DefaultConfig()), input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].caseID != "c1" || events[0].ts != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano() {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].caseID != "7" || events[1].resource != "bot" {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if events[2].caseID != "c2" || events[2].activity != "c" {
		t.Errorf("unexpected third event %+v", events[2])
	}
}

func TestJSONLParser_Malformed(t *testing.T) {
	_, err := collect(t, mustParser(t, FormatJSONL, DefaultConfig()), `{"case_id": "c1",`)
	if !lperrors.IsCode(err, lperrors.CodeParseFailed) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Case ID", "Activity", "Timestamp"},
		{"c1", "Register", "2024-01-01 10:00:00"},
		{"", "Skipped", ""},
		{"c1", "Approve", 45292.5},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	events, err := collect(t, mustParser(t, FormatXLSX, DefaultConfig()), buf.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	// Serial 45292.5 is 2024-01-01 12:00 UTC.
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	if events[1].activity != "Approve" || events[1].ts != want {
		t.Errorf("unexpected second event %+v (want ts %d)", events[1], want)
	}
}

func TestParse_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *model.Event)
	err := NewCSVParser(DefaultConfig()).Parse(ctx, strings.NewReader("case_id,activity\n1,a\n"), out)
	if !lperrors.IsCode(err, lperrors.CodeContextCanceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
