package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

// XES attribute keys
var (
	xesConceptName = []byte("concept:name")
	xesTimeStamp   = []byte("time:timestamp")
	xesOrgResource = []byte("org:resource")
	xesLifecycleTr = []byte("lifecycle:transition")
)

// XML element names
var (
	xmlLog    = []byte("log")
	xmlTrace  = []byte("trace")
	xmlEvent  = []byte("event")
	xmlString = []byte("string")
	xmlDate   = []byte("date")
	xmlInt    = []byte("int")
	xmlFloat  = []byte("float")
	xmlBool   = []byte("boolean")
	xmlID     = []byte("id")
)

type xesState uint8

const (
	stateInit xesState = iota
	stateLog
	stateTrace
	stateEvent
)

// XESParser implements streaming XES parsing using a state machine over
// tags. Only top-level trace and event attributes are read; nested lists
// and containers are skipped. Events are held back until their trace
// closes so that every event carries the trace's final concept:name.
type XESParser struct {
	cfg Config
}

// NewXESParser creates a new XES parser.
func NewXESParser(cfg Config) *XESParser {
	return &XESParser{cfg: cfg}
}

// Parse implements the Parser interface. Each event carries the ordinal of
// its trace element in Event.Trace, so traces sharing a concept:name stay
// apart. Traces without a concept:name get their 1-based position as case ID.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	lifecycle := []byte(p.cfg.Lifecycle)

	state := stateInit
	var (
		caseID   []byte
		current  *model.Event
		pending  []*model.Event
		traces   int
		position int
		depth    int // nesting below the current trace or event
	)
	release := func() {
		if current != nil {
			pool.Events.Put(current)
			current = nil
		}
		for _, e := range pending {
			pool.Events.Put(e)
		}
		pending = pending[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			release()
			return lperrors.ContextCanceled("parse", err)
		}

		tag, err := readTag(reader)
		if err != nil && err != io.EOF {
			release()
			return err
		}
		if len(tag) == 0 && err == io.EOF {
			break
		}

		// Skip character data preceding the tag.
		if i := bytes.IndexByte(tag, '<'); i > 0 {
			tag = tag[i:]
		}
		tag = bytes.TrimSpace(tag)
		if len(tag) < 3 || tag[0] != '<' || tag[1] == '?' || tag[1] == '!' {
			if err == io.EOF {
				break
			}
			continue
		}

		switch {
		case state == stateInit && isOpenTag(tag, xmlLog):
			state = stateLog

		case state == stateLog && isOpenTag(tag, xmlTrace):
			traces++
			caseID = strconv.AppendInt(caseID[:0], int64(traces), 10)
			depth = 0
			if isSelfClosing(tag) {
				break
			}
			state = stateTrace

		case state == stateTrace && depth == 0 && isCloseTag(tag, xmlTrace):
			state = stateLog
			for i, e := range pending {
				e.CaseID = append(e.CaseID[:0], caseID...)
				pending[i] = nil
				if err := p.emit(ctx, out, e, lifecycle); err != nil {
					pending = pending[i+1:]
					release()
					return err
				}
			}
			pending = pending[:0]

		case state == stateTrace && depth == 0 && isOpenTag(tag, xmlEvent):
			position++
			current = pool.Events.Get()
			current.Trace = traces
			current.Position = position
			if isSelfClosing(tag) {
				pending = append(pending, current)
				current = nil
				break
			}
			state = stateEvent

		case state == stateEvent && depth == 0 && isCloseTag(tag, xmlEvent):
			state = stateTrace
			pending = append(pending, current)
			current = nil

		case (state == stateTrace || state == stateEvent) && tag[1] != '/':
			if depth == 0 && isAttributeTag(tag) {
				key, value := extractAttribute(tag)
				if state == stateTrace {
					if bytes.Equal(key, xesConceptName) {
						caseID = append(caseID[:0], value...)
					}
				} else {
					p.processEventAttribute(key, value, current)
				}
			}
			if !isSelfClosing(tag) {
				depth++
			}

		case (state == stateTrace || state == stateEvent) && depth > 0:
			depth--
		}

		if err == io.EOF {
			break
		}
	}

	if current != nil || len(pending) > 0 {
		release()
		return parseError("xes", position, ErrTruncated)
	}
	return nil
}

// readTag reads up to the next '>' that is not inside a quoted attribute
// value of the tag.
func readTag(r *bufio.Reader) ([]byte, error) {
	tag, err := r.ReadBytes('>')
	for err == nil && inQuotedValue(tag) {
		var more []byte
		more, err = r.ReadBytes('>')
		tag = append(tag, more...)
	}
	return tag, err
}

// inQuotedValue reports whether tag ends inside an open quote. Character
// data before the '<' and comments or declarations are not quote-tracked.
func inQuotedValue(tag []byte) bool {
	i := bytes.IndexByte(tag, '<')
	if i < 0 || i+1 >= len(tag) || tag[i+1] == '!' || tag[i+1] == '?' {
		return false
	}
	var quote byte
	for _, c := range tag[i+1:] {
		switch {
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case c == quote:
			quote = 0
		}
	}
	return quote != 0
}

// emit sends e unless the lifecycle filter rejects it.
func (p *XESParser) emit(ctx context.Context, out chan<- *model.Event, e *model.Event, lifecycle []byte) error {
	if len(lifecycle) > 0 && !bytes.EqualFold(e.Lifecycle, lifecycle) {
		pool.Events.Put(e)
		return nil
	}
	return send(ctx, out, e)
}

// isOpenTag checks if tag opens the given element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' {
		return false
	}
	if !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(tag) {
		return true
	}
	c := tag[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}

// isCloseTag checks if tag is </element>.
func isCloseTag(tag, element []byte) bool {
	if len(tag) < len(element)+3 || tag[0] != '<' || tag[1] != '/' {
		return false
	}
	return bytes.HasPrefix(tag[2:], element)
}

func isSelfClosing(tag []byte) bool {
	return len(tag) >= 2 && tag[len(tag)-2] == '/'
}

// isAttributeTag checks if tag opens an XES attribute element.
func isAttributeTag(tag []byte) bool {
	for _, el := range [][]byte{xmlString, xmlDate, xmlInt, xmlFloat, xmlBool, xmlID} {
		if isOpenTag(tag, el) {
			return true
		}
	}
	return false
}

// extractAttribute extracts key and unescaped value from an XES attribute element.
func extractAttribute(tag []byte) (key, value []byte) {
	key = extractAttrValue(tag, []byte("key="))
	value = unescapeXML(extractAttrValue(tag, []byte("value=")))
	return key, value
}

// extractAttrValue extracts an XML attribute value in single or double quotes.
func extractAttrValue(tag, prefix []byte) []byte {
	for from := 0; from < len(tag); {
		idx := bytes.Index(tag[from:], prefix)
		if idx < 0 {
			return nil
		}
		idx += from
		start := idx + len(prefix)
		// The prefix must start a new attribute name.
		if (idx > 0 && !isSpace(tag[idx-1])) || start >= len(tag) {
			from = start
			continue
		}
		quote := tag[start]
		if quote != '"' && quote != '\'' {
			return nil
		}
		end := bytes.IndexByte(tag[start+1:], quote)
		if end < 0 {
			return nil
		}
		return tag[start+1 : start+1+end]
	}
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

var xmlEntities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"quot": `"`,
	"apos": "'",
	"amp":  "&",
}

// unescapeXML decodes predefined entities and numeric character references.
// Unknown references are kept as written.
func unescapeXML(v []byte) []byte {
	if bytes.IndexByte(v, '&') < 0 {
		return v
	}
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '&' {
			out = append(out, v[i])
			continue
		}
		end := bytes.IndexByte(v[i:], ';')
		if end < 0 {
			out = append(out, v[i:]...)
			break
		}
		ref := string(v[i+1 : i+end])
		if s, ok := xmlEntities[ref]; ok {
			out = append(out, s...)
			i += end
			continue
		}
		if r, ok := charRef(ref); ok {
			out = utf8.AppendRune(out, r)
			i += end
			continue
		}
		out = append(out, '&')
	}
	return out
}

// charRef decodes "#NN" and "#xHH" references.
func charRef(ref string) (rune, bool) {
	if len(ref) < 2 || ref[0] != '#' {
		return 0, false
	}
	base, digits := 10, ref[1:]
	if digits[0] == 'x' || digits[0] == 'X' {
		base, digits = 16, digits[1:]
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return 0, false
	}
	return rune(n), true
}

// processEventAttribute applies a top-level event attribute.
func (p *XESParser) processEventAttribute(key, value []byte, event *model.Event) {
	if event == nil || key == nil {
		return
	}
	switch {
	case bytes.Equal(key, xesConceptName):
		event.Activity = append(event.Activity[:0], value...)
	case bytes.Equal(key, xesTimeStamp):
		if ts, err := ParseTimestamp(string(value), p.cfg.TimestampFormat); err == nil {
			event.Timestamp = ts
		}
	case bytes.Equal(key, xesOrgResource):
		event.Resource = append(event.Resource[:0], value...)
	case bytes.Equal(key, xesLifecycleTr):
		event.Lifecycle = append(event.Lifecycle[:0], value...)
	}
}
