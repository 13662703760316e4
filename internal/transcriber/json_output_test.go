package transcriber

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"onetwotranscript/internal/transcript"
)

func TestJSONOutput_WriteSegments(t *testing.T) {
	t.Run("should write an array readable by DecodeSegments", func(t *testing.T) {
		var buffer bytes.Buffer
		jsonOutput := NewJSONOutput(&buffer, zaptest.NewLogger(t))
		segments := []transcript.Segment{
			{Start: 0, End: 2.5, Text: "Bonjour"},
			{Start: 2.5, End: 5, Text: "Merci"},
		}

		require.NoError(t, jsonOutput.WriteSegments(segments))
		decoded, err := transcript.DecodeSegments(buffer.Bytes())

		require.NoError(t, err)
		assert.Equal(t, segments, decoded)
	})

	t.Run("should reject invalid segments without writing", func(t *testing.T) {
		var buffer bytes.Buffer
		jsonOutput := NewJSONOutput(&buffer, zaptest.NewLogger(t))

		err := jsonOutput.WriteSegments([]transcript.Segment{{Start: 2, End: 1, Text: "x"}})

		assert.ErrorIs(t, err, transcript.ErrInvalidSegment)
		assert.Zero(t, buffer.Len())
	})

	t.Run("should write an empty array for no segments", func(t *testing.T) {
		var buffer bytes.Buffer
		jsonOutput := NewJSONOutput(&buffer, zaptest.NewLogger(t))

		require.NoError(t, jsonOutput.WriteSegments(nil))

		assert.Equal(t, "[]\n", buffer.String())
	})
}
