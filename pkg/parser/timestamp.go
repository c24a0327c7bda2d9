package parser

import (
	"errors"
	"strings"
	"time"
)

// errInvalidTimestamp is returned when no layout matches.
var errInvalidTimestamp = errors.New("invalid timestamp")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
}

// ParseTimestamp parses s into nanoseconds since epoch, trying layout first
// when set. Timestamps without a zone are read as UTC.
func ParseTimestamp(s, layout string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidTimestamp
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, errInvalidTimestamp
}
