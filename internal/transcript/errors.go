package transcript

import (
	"errors"
	"fmt"
)

// ErrInvalidSegment is reported when a segment is missing a field, carries a
// non-numeric or non-finite timestamp, or ends before it starts
var ErrInvalidSegment = errors.New("invalid segment")

// ErrInvalidInput is reported when a timestamp value cannot be rendered
var ErrInvalidInput = errors.New("invalid input")

// SegmentError describes why a segment at a given position was rejected
type SegmentError struct {
	Index  int
	Reason string
}

func (e *SegmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid segment: %s", e.Reason)
	}
	return fmt.Sprintf("invalid segment %d: %s", e.Index, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, ErrInvalidSegment)
func (e *SegmentError) Unwrap() error {
	return ErrInvalidSegment
}

func segmentError(index int, format string, args ...any) error {
	return &SegmentError{Index: index, Reason: fmt.Sprintf(format, args...)}
}
