package transcript

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const timeSeparator = " --> "

// BuildPlainTranscript renders the annotated plain-text transcript: the title,
// an underline of '=' as long as the title, a blank line, then one paragraph
// per segment. Nothing is written unless every segment is valid.
func BuildPlainTranscript(title string, segments []Segment) (string, error) {
	if err := ValidateSegments(segments); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", utf8.RuneCountInString(title)))
	b.WriteString("\n\n")

	for _, seg := range segments {
		writeTimeLine(&b, seg)
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// BuildSubtitles renders the SRT body. Cues are numbered from 1 in input
// order; overlapping or out-of-order timings are kept as given.
func BuildSubtitles(segments []Segment) (string, error) {
	if err := ValidateSegments(segments); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, seg := range segments {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		writeTimeLine(&b, seg)
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// writeTimeLine assumes the segment has been validated
func writeTimeLine(b *strings.Builder, seg Segment) {
	start, _ := FormatTimestamp(seg.Start)
	end, _ := FormatTimestamp(seg.End)
	b.WriteString(start)
	b.WriteString(timeSeparator)
	b.WriteString(end)
	b.WriteByte('\n')
}
