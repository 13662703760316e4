package transcript

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlainTranscript(t *testing.T) {
	t.Run("should render the interview example", func(t *testing.T) {
		// Arrange
		segments := []Segment{{Start: 0.0, End: 2.5, Text: " Hello world "}}

		// Act
		got, err := BuildPlainTranscript("INTERVIEW", segments)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "INTERVIEW\n=========\n\n00:00:00,000 --> 00:00:02,500\nHello world\n\n", got)
	})

	t.Run("should render only the header for an empty sequence", func(t *testing.T) {
		// Act
		got, err := BuildPlainTranscript("EMPTY", nil)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "EMPTY\n=====\n\n", got)
	})

	t.Run("should keep an empty line for a segment without text", func(t *testing.T) {
		// Arrange
		segments := []Segment{
			{Start: 0, End: 1, Text: "first"},
			{Start: 1, End: 2, Text: "   "},
			{Start: 2, End: 3, Text: "third"},
		}

		// Act
		got, err := BuildPlainTranscript("T", segments)

		// Assert
		require.NoError(t, err)
		expected := "T\n=\n\n" +
			"00:00:00,000 --> 00:00:01,000\nfirst\n\n" +
			"00:00:01,000 --> 00:00:02,000\n\n\n" +
			"00:00:02,000 --> 00:00:03,000\nthird\n\n"
		assert.Equal(t, expected, got)
	})

	t.Run("should underline with as many characters as the title has", func(t *testing.T) {
		for _, title := range []string{"", "A", "RÉUNION D'ÉQUIPE", "会議", "INTERVIEW 2024"} {
			// Act
			got, err := BuildPlainTranscript(title, nil)
			require.NoError(t, err)

			// Assert
			lines := strings.Split(got, "\n")
			require.GreaterOrEqual(t, len(lines), 2)
			assert.Equal(t, title, lines[0])
			assert.Equal(t, utf8.RuneCountInString(title), utf8.RuneCountInString(lines[1]), title)
			assert.Equal(t, strings.Repeat("=", utf8.RuneCountInString(title)), lines[1])
		}
	})

	t.Run("should preserve input order", func(t *testing.T) {
		// Arrange
		segments := []Segment{
			{Start: 10, End: 12, Text: "later"},
			{Start: 0, End: 1, Text: "earlier"},
		}

		// Act
		got, err := BuildPlainTranscript("ORDER", segments)

		// Assert
		require.NoError(t, err)
		assert.Less(t, strings.Index(got, "later"), strings.Index(got, "earlier"))
	})

	t.Run("should be deterministic for identical input", func(t *testing.T) {
		segments := []Segment{{Start: 1.25, End: 3.75, Text: "same"}}

		first, err := BuildPlainTranscript("X", segments)
		require.NoError(t, err)
		second, err := BuildPlainTranscript("X", segments)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestBuildSubtitles(t *testing.T) {
	t.Run("should render the interview example", func(t *testing.T) {
		// Arrange
		segments := []Segment{{Start: 0.0, End: 2.5, Text: " Hello world "}}

		// Act
		got, err := BuildSubtitles(segments)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,500\nHello world\n\n", got)
	})

	t.Run("should return an empty string for an empty sequence", func(t *testing.T) {
		got, err := BuildSubtitles([]Segment{})

		require.NoError(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("should number cues contiguously regardless of timing", func(t *testing.T) {
		for _, n := range []int{1, 2, 9, 10, 11, 150} {
			// Arrange: overlapping, gapped and zero-length segments
			segments := make([]Segment, n)
			for i := range segments {
				start := float64((i * 7) % 13)
				segments[i] = Segment{Start: start, End: start + float64(i%3), Text: fmt.Sprintf("line %d", i)}
			}

			// Act
			got, err := BuildSubtitles(segments)
			require.NoError(t, err)

			// Assert
			cue := regexp.MustCompile(`(?m)^(\d+)\n\d{2}:\d{2}:\d{2},\d{3} --> `)
			matches := cue.FindAllStringSubmatch(got, -1)
			require.Len(t, matches, n)
			for i, m := range matches {
				assert.Equal(t, strconv.Itoa(i+1), m[1])
			}
		}
	})

	t.Run("should render a cue ending at the largest accepted timestamp", func(t *testing.T) {
		got, err := BuildSubtitles([]Segment{{Start: 0, End: maxSeconds, Text: "x"}})

		require.NoError(t, err)
		assert.Equal(t, "1\n00:00:00,000 --> 2501999792:59:00,000\nx\n\n", got)
	})

	t.Run("should keep an empty cue for a segment without text", func(t *testing.T) {
		got, err := BuildSubtitles([]Segment{{Start: 0, End: 1, Text: ""}})

		require.NoError(t, err)
		assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\n\n\n", got)
	})
}

func TestBuilders_RejectInvalidSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		index    int
	}{
		{
			name:     "end before start",
			segments: []Segment{{Start: 0, End: 1, Text: "ok"}, {Start: 5, End: 4, Text: "bad"}},
			index:    1,
		},
		{
			name:     "negative start",
			segments: []Segment{{Start: -1, End: 1, Text: "bad"}},
			index:    0,
		},
		{
			name:     "infinite end",
			segments: []Segment{{Start: 0, End: 1, Text: "ok"}, {Start: 0, End: 2, Text: "ok"}, {Start: 1, End: math.Inf(1), Text: "bad"}},
			index:    2,
		},
		{
			name:     "end beyond the renderable range",
			segments: []Segment{{Start: 0, End: math.Nextafter(maxSeconds, math.Inf(1)), Text: "x"}},
			index:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			plain, plainErr := BuildPlainTranscript("TITLE", tt.segments)
			subs, subsErr := BuildSubtitles(tt.segments)

			// Assert
			assert.Empty(t, plain, "no partial plain output")
			assert.Empty(t, subs, "no partial subtitle output")
			for _, err := range []error{plainErr, subsErr} {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSegment)

				var segErr *SegmentError
				require.True(t, errors.As(err, &segErr))
				assert.Equal(t, tt.index, segErr.Index)
			}
		})
	}
}

func TestRender(t *testing.T) {
	t.Run("should build both formats and suggest file names", func(t *testing.T) {
		// Arrange
		segments := []Segment{{Start: 0.0, End: 2.5, Text: " Hello world "}}

		// Act
		doc, err := Render("INTERVIEW", segments)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "INTERVIEW", doc.Title)
		assert.Equal(t, "INTERVIEW\n=========\n\n00:00:00,000 --> 00:00:02,500\nHello world\n\n", doc.Plain)
		assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,500\nHello world\n\n", doc.Subtitles)
		assert.Equal(t, "INTERVIEW.txt", doc.PlainFilename())
		assert.Equal(t, "INTERVIEW.srt", doc.SubtitleFilename())
	})

	t.Run("should fail without a partial document", func(t *testing.T) {
		doc, err := Render("X", []Segment{{Start: 3, End: 1, Text: "bad"}})

		assert.ErrorIs(t, err, ErrInvalidSegment)
		assert.Equal(t, Document{}, doc)
	})
}
