package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
)

// TranscriptionRecord is one line of the transcription journal
type TranscriptionRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Filename     string    `json:"filename"`
	AudioBytes   int64     `json:"audio_bytes"`
	Backend      string    `json:"backend"`
	Model        string    `json:"model"`
	Language     string    `json:"language"`
	Segments     int       `json:"segments"`
	AudioSeconds float64   `json:"audio_seconds"`
	ProcessingMS int64     `json:"processing_ms"`
	Cached       bool      `json:"cached"`
	Timestamp    time.Time `json:"timestamp"`
}

// LogOutput appends completed transcriptions to a JSON-lines file
type LogOutput struct {
	filePath string
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewLogOutput creates a LogOutput writing to the configured journal path
func NewLogOutput(cfg *config.Configuration, logger *zap.Logger) (*LogOutput, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &LogOutput{
		filePath: cfg.GetLogFilePath(),
		logger:   logger,
	}, nil
}

// GetFilePath returns the journal location
func (lo *LogOutput) GetFilePath() string {
	return lo.filePath
}

// FormatRecordAsJSON encodes a record as a single JSON line without the newline
func (lo *LogOutput) FormatRecordAsJSON(record TranscriptionRecord) (string, error) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcription record: %w", err)
	}
	return string(data), nil
}

// WriteRecord appends the record to the journal, creating the directory if needed
func (lo *LogOutput) WriteRecord(record TranscriptionRecord) error {
	line, err := lo.FormatRecordAsJSON(record)
	if err != nil {
		return err
	}

	lo.mu.Lock()
	defer lo.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(lo.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(lo.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", lo.filePath, err)
	}
	defer file.Close()

	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}

	lo.logger.Debug("transcription recorded",
		zap.String("id", record.ID),
		zap.String("title", record.Title),
		zap.Int("segments", record.Segments),
		zap.Bool("cached", record.Cached))

	return nil
}
