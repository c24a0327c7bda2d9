package parser

import (
	"bufio"
	"context"
	"io"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

// CSVParser implements byte-level CSV parsing. The first line is the header.
type CSVParser struct {
	cfg Config
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{cfg: cfg}
}

// Parse implements the Parser interface. Rows too short to hold the case
// and activity columns are skipped; unparsable timestamps are left unset.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	scanner := NewCSVScanner(p.cfg.Delimiter)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	headerLine = trimLineEnding(headerLine)
	if len(headerLine) == 0 {
		return parseError("csv", 1, ErrEmptyInput)
	}

	raw := scanner.ScanLine(trimBOM(headerLine))
	header := make([]string, len(raw))
	for i, h := range raw {
		header[i] = string(h)
	}
	cols, err := ResolveColumns(header, p.cfg)
	if err != nil {
		return err
	}
	need := max(cols.CaseID, cols.Activity)

	lineNum := 1
	for {
		if err := ctx.Err(); err != nil {
			return lperrors.ContextCanceled("parse", err)
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if len(line) == 0 && err == io.EOF {
			break
		}
		lineNum++

		line = trimLineEnding(line)
		if len(line) == 0 {
			continue
		}

		fields := scanner.ScanLine(line)
		if len(fields) <= need {
			continue
		}

		event := pool.Events.Get()
		event.Position = lineNum
		event.CaseID = append(event.CaseID[:0], fields[cols.CaseID]...)
		event.Activity = append(event.Activity[:0], fields[cols.Activity]...)
		if cols.Timestamp >= 0 && cols.Timestamp < len(fields) {
			if ts, err := ParseTimestamp(string(fields[cols.Timestamp]), p.cfg.TimestampFormat); err == nil {
				event.Timestamp = ts
			}
		}
		if cols.Resource >= 0 && cols.Resource < len(fields) {
			event.Resource = append(event.Resource[:0], fields[cols.Resource]...)
		}

		if err := send(ctx, out, event); err != nil {
			return err
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

// trimBOM strips a UTF-8 byte order mark.
func trimBOM(line []byte) []byte {
	if len(line) >= 3 && line[0] == 0xEF && line[1] == 0xBB && line[2] == 0xBF {
		return line[3:]
	}
	return line
}
