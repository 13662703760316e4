package transcript

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Segment is a single timed unit of transcribed speech
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Validate checks that the segment timestamps can be rendered and are ordered
func (s Segment) Validate() error {
	return s.validate(-1)
}

func (s Segment) validate(index int) error {
	if !isRenderable(s.Start) {
		return segmentError(index, "start %v must be a finite non-negative number of seconds", s.Start)
	}
	if !isRenderable(s.End) {
		return segmentError(index, "end %v must be a finite non-negative number of seconds", s.End)
	}
	if s.End < s.Start {
		return segmentError(index, "end %v is before start %v", s.End, s.Start)
	}
	return nil
}

// ValidateSegments checks every segment and reports the first rejected one
func ValidateSegments(segments []Segment) error {
	for i, seg := range segments {
		if err := seg.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// RawSegment is the decoding shape used at engine boundaries. Fields are
// optional so that absent or malformed values can be reported as
// ErrInvalidSegment instead of silently defaulting to zero.
type RawSegment struct {
	Start *float64
	End   *float64
	Text  *string

	problem string
}

type rawSegmentJSON struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
	Text  json.RawMessage `json:"text"`
}

// UnmarshalJSON records field problems rather than failing the whole decode,
// so the position of the offending segment can be reported later.
func (r *RawSegment) UnmarshalJSON(data []byte) error {
	*r = RawSegment{}

	var raw rawSegmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		r.problem = "segment must be an object"
		return nil
	}

	var problem string
	r.Start, problem = decodeSeconds("start", raw.Start)
	r.problem = problem
	var endProblem string
	r.End, endProblem = decodeSeconds("end", raw.End)
	if r.problem == "" {
		r.problem = endProblem
	}

	if isNull(raw.Text) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw.Text, &text); err != nil {
		if r.problem == "" {
			r.problem = "text must be a string"
		}
		return nil
	}
	r.Text = &text
	return nil
}

// MarshalJSON writes the segment back in its canonical shape
func (r RawSegment) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if r.Start != nil {
		out["start"] = *r.Start
	}
	if r.End != nil {
		out["end"] = *r.End
	}
	if r.Text != nil {
		out["text"] = *r.Text
	}
	return json.Marshal(out)
}

// Segment converts the raw form into a validated Segment
func (r RawSegment) Segment() (Segment, error) {
	return r.segment(-1)
}

func (r RawSegment) segment(index int) (Segment, error) {
	switch {
	case r.problem != "":
		return Segment{}, segmentError(index, "%s", r.problem)
	case r.Start == nil:
		return Segment{}, segmentError(index, "missing start")
	case r.End == nil:
		return Segment{}, segmentError(index, "missing end")
	case r.Text == nil:
		return Segment{}, segmentError(index, "missing text")
	}

	seg := Segment{Start: *r.Start, End: *r.End, Text: *r.Text}
	if err := seg.validate(index); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// NewRawSegment builds a fully populated RawSegment
func NewRawSegment(start, end float64, text string) RawSegment {
	return RawSegment{Start: &start, End: &end, Text: &text}
}

// FromRaw converts a decoded sequence, failing on the first malformed entry
func FromRaw(raw []RawSegment) ([]Segment, error) {
	segments := make([]Segment, 0, len(raw))
	for i, r := range raw {
		seg, err := r.segment(i)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// DecodeSegments parses a JSON array of segments
func DecodeSegments(data []byte) ([]Segment, error) {
	var raw []RawSegment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return FromRaw(raw)
}

func decodeSeconds(field string, data json.RawMessage) (*float64, string) {
	if isNull(data) {
		return nil, ""
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return nil, field + " must be a number"
	}
	v, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return nil, field + " must be a number"
	}
	return &v, ""
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isRenderable(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0 && seconds <= maxSeconds
}
