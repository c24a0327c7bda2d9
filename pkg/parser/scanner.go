package parser

// scanState is the state of the CSV line scanner.
type scanState uint8

const (
	stateFieldStart scanState = iota
	stateInField
	stateInQuotedField
	stateQuoteInQuotedField
)

// CSVScanner splits CSV lines with a finite state machine. It handles
// embedded delimiters and escaped quotes; quoted newlines are not supported.
type CSVScanner struct {
	delimiter byte
	fields    [][]byte
}

// NewCSVScanner creates a new CSV scanner with the specified delimiter.
func NewCSVScanner(delimiter byte) *CSVScanner {
	return &CSVScanner{delimiter: delimiter, fields: make([][]byte, 0, 16)}
}

// ScanLine splits line into fields. Unquoted fields point into line; the
// returned slice is reused by the next call.
func (s *CSVScanner) ScanLine(line []byte) [][]byte {
	fields := s.fields[:0]
	if len(line) == 0 {
		return fields
	}

	state := stateFieldStart
	start, end := 0, 0
	escaped := false

	for i := 0; i <= len(line); i++ {
		atEnd := i == len(line)
		var c byte
		if !atEnd {
			c = line[i]
		}

		switch state {
		case stateFieldStart:
			switch {
			case atEnd || c == s.delimiter:
				fields = append(fields, nil)
			case c == '"':
				start = i + 1
				state = stateInQuotedField
			default:
				start = i
				state = stateInField
			}

		case stateInField:
			if atEnd || c == s.delimiter {
				fields = append(fields, line[start:i])
				state = stateFieldStart
			}

		case stateInQuotedField:
			if atEnd {
				// Unterminated quote: take the rest of the line.
				fields = append(fields, line[start:i])
			} else if c == '"' {
				end = i
				state = stateQuoteInQuotedField
			}

		case stateQuoteInQuotedField:
			switch {
			case atEnd || c == s.delimiter:
				f := line[start:end]
				if escaped {
					f = unescapeQuotes(f)
					escaped = false
				}
				fields = append(fields, f)
				state = stateFieldStart
			case c == '"':
				escaped = true
				state = stateInQuotedField
			default:
				// Lenient: text after a closing quote stays in the field.
				state = stateInQuotedField
			}
		}
	}

	s.fields = fields
	return fields
}

// unescapeQuotes replaces "" with " in a quoted field.
func unescapeQuotes(field []byte) []byte {
	buf := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		buf = append(buf, field[i])
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			i++
		}
	}
	return buf
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
