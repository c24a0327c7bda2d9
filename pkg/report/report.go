// Package report records what a filter run did: which log went in, how
// long each phase took, and which activity sets came out.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/filter"
)

// Format selects the report encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", lperrors.New(lperrors.CodeInvalidConfig, "unknown report format").
			WithContext("format", s)
	}
}

// FormatFor picks the format from a file extension, defaulting to YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Input describes the log a run was started on.
type Input struct {
	URI        string `json:"uri" yaml:"uri"`
	Format     string `json:"format" yaml:"format"`
	Name       string `json:"name" yaml:"name"`
	Traces     int    `json:"traces" yaml:"traces"`
	Events     int    `json:"events" yaml:"events"`
	Activities int    `json:"activities" yaml:"activities"`
	Bytes      int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
}

// Timings holds the wall time of each phase.
type Timings struct {
	Load   time.Duration `json:"load" yaml:"load"`
	Search time.Duration `json:"search" yaml:"search"`
	Write  time.Duration `json:"write" yaml:"write"`
	Total  time.Duration `json:"total" yaml:"total"`
}

// Entry is one row of the elimination table.
type Entry struct {
	Size            int      `json:"size" yaml:"size"`
	Removed         string   `json:"removed" yaml:"removed"`
	Activities      []string `json:"activities" yaml:"activities,flow"`
	RawEntropy      float64  `json:"raw_entropy" yaml:"raw_entropy"`
	AdjustedEntropy float64  `json:"adjusted_entropy" yaml:"adjusted_entropy"`
	Selected        bool     `json:"selected" yaml:"selected"`
	Traces          int      `json:"traces,omitempty" yaml:"traces,omitempty"`
	Output          string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// Report is the record of one filter run.
type Report struct {
	ID        string    `json:"id" yaml:"id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Input     Input     `json:"input" yaml:"input"`
	MinSize   int       `json:"min_size" yaml:"min_size"`
	Workers   int       `json:"workers" yaml:"workers"`
	Cached    bool      `json:"cached" yaml:"cached"`
	Timings   Timings   `json:"timings" yaml:"timings"`
	Entries   []Entry   `json:"entries" yaml:"entries"`
}

// New starts a report with a fresh run id.
func New(input Input, started time.Time) *Report {
	return &Report{
		ID:        uuid.NewString(),
		StartedAt: started.UTC(),
		Input:     input,
	}
}

// DescribeLog fills the size fields of an Input from a loaded log.
func DescribeLog(uri, format string, log *eventlog.Log) Input {
	return Input{
		URI:        uri,
		Format:     format,
		Name:       log.Name,
		Traces:     log.Len(),
		Events:     log.EventCount(),
		Activities: log.Activities().Len(),
	}
}

// SetResult copies the elimination table, largest set first, and marks the
// entries the run reports as projections.
func (r *Report) SetResult(res *filter.Result) {
	r.MinSize = res.MinSize
	r.Entries = r.Entries[:0]
	for _, size := range res.Table.Sizes() {
		e := res.Table[size]
		r.Entries = append(r.Entries, Entry{
			Size:            e.Size,
			Removed:         string(e.Removed),
			Activities:      e.Activities.Strings(),
			RawEntropy:      e.RawEntropy,
			AdjustedEntropy: e.AdjustedEntropy,
			Selected:        size > res.MinSize,
		})
	}
}

// SetOutput records where the projection of the given size was written.
func (r *Report) SetOutput(size, traces int, uri string) {
	for i := range r.Entries {
		if r.Entries[i].Size == size {
			r.Entries[i].Traces = traces
			r.Entries[i].Output = uri
			return
		}
	}
}

// Selected returns the entries marked as projections.
func (r *Report) Selected() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Selected {
			out = append(out, e)
		}
	}
	return out
}

// Encode writes the report to w.
func (r *Report) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return lperrors.Wrap(err, lperrors.CodeWriteFailed, "encode report")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return lperrors.Wrap(err, lperrors.CodeWriteFailed, "encode report")
		}
		return enc.Close()
	default:
		return lperrors.New(lperrors.CodeInvalidConfig, fmt.Sprintf("unknown report format %q", format))
	}
}

// Decode reads a report written by Encode.
func Decode(r io.Reader, format Format) (*Report, error) {
	var rep Report
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&rep)
	default:
		err = yaml.NewDecoder(r).Decode(&rep)
	}
	if err != nil {
		return nil, lperrors.Wrap(err, lperrors.CodeParseFailed, "decode report")
	}
	return &rep, nil
}
