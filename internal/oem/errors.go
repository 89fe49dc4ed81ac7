package oem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/litescript/ls-ephem/internal/epoch"
)

// Parse error kinds. Every error returned by Parse wraps exactly one of these,
// so callers can test with errors.Is.
var (
	ErrUnsupportedVersion   = errors.New("unsupported OEM version")
	ErrUnsupportedFormat    = errors.New("unsupported message format")
	ErrUnexpectedField      = errors.New("unexpected field")
	ErrNestedBlock          = errors.New("nested or misplaced block")
	ErrMissingMetaField     = errors.New("missing metadata field")
	ErrInvalidMetaValue     = errors.New("invalid metadata value")
	ErrIncompleteDataRow    = errors.New("incomplete data row")
	ErrMisplacedComment     = errors.New("misplaced comment")
	ErrUnexpectedEOF        = errors.New("unexpected end of input")
	ErrTrailingContent      = errors.New("trailing content")
	ErrMalformedEpoch       = errors.New("malformed epoch")
	ErrMalformedReal        = errors.New("malformed real number")
	ErrUnorderedSamples     = errors.New("samples out of order")
	ErrSampleOutsideSegment = errors.New("sample outside segment time span")
	ErrEmptySegment         = errors.New("segment has no samples")
	ErrOverlappingSegments  = errors.New("overlapping segments")
)

// Query error kinds.
var (
	ErrOutOfRange        = errors.New("epoch outside segment coverage")
	ErrNoCoveringSegment = errors.New("no segment covers epoch")
)

// ParseError describes a fatal problem found while reading a message.
type ParseError struct {
	Kind    error  // One of the Err* parse kinds
	Source  string // File name or stream label
	Line    int    // 1-based line number, 0 when not tied to a line
	Keyword string // Offending or missing keyword, if any
	Detail  string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the error kind.
func (e *ParseError) Unwrap() error {
	return e.Kind
}

// OutOfRangeError reports a segment query outside the segment's usable window.
type OutOfRangeError struct {
	Object    string
	Requested epoch.Epoch
	Start     epoch.Epoch
	Stop      epoch.Epoch
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%v: %s requested for %s, covered [%s, %s]",
		ErrOutOfRange, e.Requested, e.Object, e.Start, e.Stop)
}

// Unwrap returns ErrOutOfRange.
func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// NoCoveringSegmentError reports a message query that no segment can answer.
type NoCoveringSegmentError struct {
	Source string
	Epoch  epoch.Epoch
	Start  epoch.Epoch // Start of the first segment
	End    epoch.Epoch // Stop of the last segment
}

func (e *NoCoveringSegmentError) Error() string {
	return fmt.Sprintf("%s: %v: %s (message spans [%s, %s])",
		e.Source, ErrNoCoveringSegment, e.Epoch, e.Start, e.End)
}

// Unwrap returns ErrNoCoveringSegment.
func (e *NoCoveringSegmentError) Unwrap() error {
	return ErrNoCoveringSegment
}
