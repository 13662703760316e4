package transcriber

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"onetwotranscript/internal/transcript"
)

// JSONOutput writes transcription segments as JSON
type JSONOutput struct {
	writer io.Writer
	logger *zap.Logger
}

// NewJSONOutput creates a new JSONOutput instance
func NewJSONOutput(writer io.Writer, logger *zap.Logger) *JSONOutput {
	return &JSONOutput{
		writer: writer,
		logger: logger,
	}
}

// WriteSegments writes the whole list as an indented JSON array, the format
// accepted back by transcript.DecodeSegments
func (jo *JSONOutput) WriteSegments(segments []transcript.Segment) error {
	if err := transcript.ValidateSegments(segments); err != nil {
		return err
	}
	if segments == nil {
		segments = []transcript.Segment{}
	}

	encoder := json.NewEncoder(jo.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(segments); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	jo.logger.Debug("wrote JSON segments", zap.Int("segments", len(segments)))
	return nil
}
