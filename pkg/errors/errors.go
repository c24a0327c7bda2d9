// Package errors provides structured error handling for logprune.
// Errors carry a code, the failing stage, optional context and a short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound      Code = "E101"
	CodeUnsupportedFormat Code = "E102"
	CodeMissingColumn     Code = "E103"
	CodeParseFailed       Code = "E104"

	// Search errors (2xx)
	CodeInvalidLogData   Code = "E201"
	CodeStatisticsFailed Code = "E202"
	CodeScoringFailed    Code = "E203"
	CodeProjectionFailed Code = "E204"
	CodeNoCandidate      Code = "E205"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeInvalidConfig   Code = "E402"
	CodeInternal        Code = "E403"

	// DuckDB errors (5xx)
	CodeDuckDBInit  Code = "E501"
	CodeDuckDBQuery Code = "E502"

	// Backend errors (6xx)
	CodeCacheFailed   Code = "E601"
	CodeStorageFailed Code = "E602"

	CodeUnknown Code = "E999"
)

// Stage names the part of a search that failed.
type Stage string

const (
	StageStatistics Stage = "statistics"
	StageScoring    Stage = "scoring"
	StageProjection Stage = "projection"
	StageSearch     Stage = "search"
)

// LogPruneError is the base error type for all logprune errors.
type LogPruneError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted so
// messages are stable.
func (e *LogPruneError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *LogPruneError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a LogPruneError with the same code.
func (e *LogPruneError) Is(target error) bool {
	if t, ok := target.(*LogPruneError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *LogPruneError) WithContext(key string, value interface{}) *LogPruneError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new LogPruneError.
func New(code Code, message string) *LogPruneError {
	return &LogPruneError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message. It returns nil for a nil err.
func Wrap(err error, code Code, message string) *LogPruneError {
	if err == nil {
		return nil
	}

	return &LogPruneError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *LogPruneError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *LogPruneError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *LogPruneError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *LogPruneError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidLogData reports an event without an activity label.
func InvalidLogData(traceID string, position int) *LogPruneError {
	return New(CodeInvalidLogData, "event has no activity label").
		WithContext("trace", traceID).
		WithContext("position", position)
}

// StageFailed wraps a failure of one search stage.
func StageFailed(stage Stage, err error) *LogPruneError {
	if err == nil {
		return nil
	}
	code := CodeUnknown
	switch stage {
	case StageStatistics:
		code = CodeStatisticsFailed
	case StageScoring:
		code = CodeScoringFailed
	case StageProjection:
		code = CodeProjectionFailed
	case StageSearch:
		code = CodeNoCandidate
	}
	return Wrapf(err, code, "%s stage failed", stage).WithContext("stage", string(stage))
}

// NoCandidate reports that no removal could be selected for an activity set.
func NoCandidate(size int) *LogPruneError {
	return New(CodeNoCandidate, "no elimination candidate with a finite score").
		WithContext("size", size)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string, cause error) *LogPruneError {
	e := New(CodeContextCanceled, "operation canceled").WithContext("operation", operation)
	e.Cause = cause
	return e
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		var lpErr *LogPruneError
		if !errors.As(err, &lpErr) {
			return false
		}
		if lpErr.Code == code {
			return true
		}
		err = lpErr.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error.
func GetCode(err error) Code {
	var lpErr *LogPruneError
	if errors.As(err, &lpErr) {
		return lpErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true for failures of remote backends.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeCacheFailed, CodeStorageFailed:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
