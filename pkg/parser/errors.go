package parser

import (
	"errors"

	lperrors "github.com/logflow/logprune/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned when the input format has no streaming parser.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")

	// ErrTruncated is returned when the input ends inside an element.
	ErrTruncated = errors.New("parser: truncated input")

	// ErrEmptyInput is returned when a tabular input has no header.
	ErrEmptyInput = errors.New("parser: empty input")
)

func unsupported(format Format) error {
	return lperrors.Wrap(ErrUnsupportedFormat, lperrors.CodeUnsupportedFormat, "unsupported input format").
		WithContext("format", format.String())
}

// parseError reports malformed input at a source position.
func parseError(format string, position int, cause error) error {
	return lperrors.Wrap(cause, lperrors.CodeParseFailed, "failed to parse input").
		WithContext("format", format).
		WithContext("position", position)
}
