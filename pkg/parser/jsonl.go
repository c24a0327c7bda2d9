package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

// JSONLParser implements streaming JSONL (newline-delimited JSON) parsing.
// Each line is a flat JSON object representing an event.
type JSONLParser struct {
	cfg Config
}

// NewJSONLParser creates a new JSONL parser.
func NewJSONLParser(cfg Config) *JSONLParser {
	return &JSONLParser{cfg: cfg}
}

// Parse implements the Parser interface for JSONL format. Lines that are not
// objects are skipped, as are objects without a case identifier. A line that
// starts an object but does not decode is an error.
func (p *JSONLParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	lineNum := 0
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

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			if err == io.EOF {
				break
			}
			continue
		}

		var obj map[string]any
		if uerr := json.Unmarshal(line, &obj); uerr != nil {
			return parseError("jsonl", lineNum, uerr)
		}

		caseID := p.lookup(obj, p.cfg.CaseIDColumn, "case")
		if caseID != "" {
			event := pool.Events.Get()
			event.Position = lineNum
			event.CaseID = append(event.CaseID[:0], caseID...)
			event.Activity = append(event.Activity[:0], p.lookup(obj, p.cfg.ActivityColumn, "activity")...)
			event.Resource = append(event.Resource[:0], p.lookup(obj, p.cfg.ResourceColumn, "resource")...)
			if ts := p.lookup(obj, p.cfg.TimestampColumn, "timestamp"); ts != "" {
				if nanos, terr := ParseTimestamp(ts, p.cfg.TimestampFormat); terr == nil {
					event.Timestamp = nanos
				}
			}
			if serr := send(ctx, out, event); serr != nil {
				return serr
			}
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

// lookup finds the value for a role, trying the configured key and then the
// role aliases, case-insensitively.
func (p *JSONLParser) lookup(obj map[string]any, configured, role string) string {
	names := append([]string{configured}, aliases[role]...)
	for _, name := range names {
		if name == "" {
			continue
		}
		if v, ok := obj[name]; ok {
			return stringify(v)
		}
		for k, v := range obj {
			if strings.EqualFold(k, name) {
				return stringify(v)
			}
		}
	}
	return ""
}

// stringify renders scalar JSON values; objects and arrays yield "".
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
