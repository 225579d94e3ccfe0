// Package conv defines the shared error taxonomy and warning vocabulary for
// the conversion pipeline. Parse and grid failures abort a song's
// conversion; recoverable anomalies become warnings on the report instead.
package conv

import (
	"errors"
	"fmt"
)

// ConversionError represents a failure that aborts a single song's
// conversion. A batch run treats these as per-song outcomes, never as a
// reason to stop sibling conversions.
//
// Conversion errors include:
//   - Malformed timing tag: a karaoke tag's numeric payload cannot be parsed
//   - Unresolvable line timing: an event carries no usable absolute timestamp
//   - Degenerate timing: too few syllables to derive a beat grid
//   - Encoding I/O failure: the chart could not be written out
type ConversionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Line is the 1-based subtitle line number, 0 when not applicable.
	Line int

	// Tag is the raw tag text that failed to parse.
	Tag string

	// Err is the wrapped cause, set for I/O failures.
	Err error
}

// ErrorCode categorizes conversion errors.
type ErrorCode string

const (
	// ErrCodeMalformedTimingTag indicates a karaoke tag payload that does
	// not parse as a duration.
	ErrCodeMalformedTimingTag ErrorCode = "MALFORMED_TIMING_TAG"

	// ErrCodeUnresolvableLineTiming indicates an event without an anchoring
	// absolute timestamp.
	ErrCodeUnresolvableLineTiming ErrorCode = "UNRESOLVABLE_LINE_TIMING"

	// ErrCodeDegenerateTiming indicates fewer than two sung syllables, not
	// enough to derive a grid. Retrying with an explicit BPM may succeed.
	ErrCodeDegenerateTiming ErrorCode = "DEGENERATE_TIMING"

	// ErrCodeEncodingIO indicates a failure at the write boundary.
	ErrCodeEncodingIO ErrorCode = "ENCODING_IO_FAILURE"
)

// Error implements the error interface.
func (e *ConversionError) Error() string {
	switch {
	case e.Line > 0 && e.Tag != "":
		return fmt.Sprintf("%s: %s (line=%d, tag=%q)", e.Code, e.Message, e.Line, e.Tag)
	case e.Line > 0:
		return fmt.Sprintf("%s: %s (line=%d)", e.Code, e.Message, e.Line)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// NewMalformedTagError creates a ConversionError for an unparseable tag.
func NewMalformedTagError(line int, tag, reason string) *ConversionError {
	return &ConversionError{
		Code:    ErrCodeMalformedTimingTag,
		Message: fmt.Sprintf("karaoke tag does not parse: %s", reason),
		Line:    line,
		Tag:     tag,
	}
}

// NewUnresolvableLineError creates a ConversionError for an event that has
// no usable absolute start time.
func NewUnresolvableLineError(line int, reason string) *ConversionError {
	return &ConversionError{
		Code:    ErrCodeUnresolvableLineTiming,
		Message: fmt.Sprintf("line has no resolvable timing: %s", reason),
		Line:    line,
	}
}

// NewDegenerateTimingError creates a ConversionError for a song with too
// few syllables to derive a grid.
func NewDegenerateTimingError(syllables int) *ConversionError {
	return &ConversionError{
		Code:    ErrCodeDegenerateTiming,
		Message: fmt.Sprintf("need at least 2 sung syllables to derive a grid, got %d", syllables),
	}
}

// NewEncodingIOError wraps a write-boundary failure.
func NewEncodingIOError(path string, err error) *ConversionError {
	return &ConversionError{
		Code:    ErrCodeEncodingIO,
		Message: fmt.Sprintf("writing chart to %s", path),
		Err:     err,
	}
}

// IsMalformedTag returns true if the error is a malformed timing tag error.
// Uses errors.As to handle wrapped errors.
func IsMalformedTag(err error) bool {
	return hasCode(err, ErrCodeMalformedTimingTag)
}

// IsUnresolvableLine returns true if the error is an unresolvable line
// timing error.
func IsUnresolvableLine(err error) bool {
	return hasCode(err, ErrCodeUnresolvableLineTiming)
}

// IsDegenerateTiming returns true if the error is a degenerate timing error.
func IsDegenerateTiming(err error) bool {
	return hasCode(err, ErrCodeDegenerateTiming)
}

// IsEncodingIO returns true if the error is an encoding I/O failure.
func IsEncodingIO(err error) bool {
	return hasCode(err, ErrCodeEncodingIO)
}

func hasCode(err error, code ErrorCode) bool {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
