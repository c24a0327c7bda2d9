package writer

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"time"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
)

const xesHeader = `<?xml version="1.0" encoding="UTF-8"?>
<log xes.version="1.0" xes.features="nested-attributes" xmlns="http://www.xes-standard.org/">
  <extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
  <extension name="Time" prefix="time" uri="http://www.xes-standard.org/time.xesext"/>
  <extension name="Organizational" prefix="org" uri="http://www.xes-standard.org/org.xesext"/>
  <classifier name="Activity" keys="concept:name"/>
`

// XESWriter streams a log as an XES document. The header is written with
// the first Write; Close writes the footer.
type XESWriter struct {
	bw      *bufio.Writer
	started bool
	closed  bool
}

// NewXESWriter creates an XES writer on out.
func NewXESWriter(out io.Writer) *XESWriter {
	return &XESWriter{bw: bufio.NewWriter(out)}
}

// Write appends the traces of log. The log name of the first call becomes
// the document's concept:name.
func (w *XESWriter) Write(ctx context.Context, log *eventlog.Log) error {
	if !w.started {
		w.bw.WriteString(xesHeader)
		if log.Name != "" {
			w.attr(2, "string", "concept:name", log.Name)
		}
		w.started = true
	}

	for _, tr := range log.Traces {
		if err := ctx.Err(); err != nil {
			return lperrors.ContextCanceled("write", err)
		}
		w.bw.WriteString("  <trace>\n")
		w.attr(4, "string", "concept:name", tr.ID)
		for _, e := range tr.Events {
			w.bw.WriteString("    <event>\n")
			w.attr(6, "string", "concept:name", string(e.Activity))
			if !e.Timestamp.IsZero() {
				w.attr(6, "date", "time:timestamp", e.Timestamp.Format(time.RFC3339Nano))
			}
			if e.Resource != "" {
				w.attr(6, "string", "org:resource", e.Resource)
			}
			w.bw.WriteString("    </event>\n")
		}
		if _, err := w.bw.WriteString("  </trace>\n"); err != nil {
			return writeError(err, FormatXES)
		}
	}
	return nil
}

// Close writes the closing tag and flushes.
func (w *XESWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.started {
		w.bw.WriteString(xesHeader)
	}
	w.bw.WriteString("</log>\n")
	if err := w.bw.Flush(); err != nil {
		return writeError(err, FormatXES)
	}
	return nil
}

func (w *XESWriter) attr(indent int, kind, key, value string) {
	for i := 0; i < indent; i++ {
		w.bw.WriteByte(' ')
	}
	w.bw.WriteString("<" + kind + ` key="` + key + `" value="`)
	xml.EscapeText(w.bw, []byte(value))
	w.bw.WriteString(`"/>` + "\n")
}
