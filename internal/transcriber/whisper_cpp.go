package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
	"onetwotranscript/internal/transcript"
)

// AudioConverter turns arbitrary input audio into 16kHz mono WAV
type AudioConverter interface {
	ConvertToWAV(ctx context.Context, src, dst string) error
}

// WhisperCppModel drives the whisper.cpp CLI against a local ggml model
type WhisperCppModel struct {
	binary    string
	modelPath string
	useGPU    bool
	converter AudioConverter
	logger    *zap.Logger
	run       CommandRunner

	mu     sync.RWMutex
	closed bool
}

type whisperCppOutput struct {
	Transcription []whisperCppEntry `json:"transcription"`
}

type whisperCppEntry struct {
	Offsets *struct {
		From *float64 `json:"from"`
		To   *float64 `json:"to"`
	} `json:"offsets"`
	Text *string `json:"text"`
}

// NewWhisperCppModel creates a model for the ggml file at modelPath
func NewWhisperCppModel(binary, modelPath string, useGPU bool, converter AudioConverter, logger *zap.Logger) *WhisperCppModel {
	return &WhisperCppModel{
		binary:    binary,
		modelPath: modelPath,
		useGPU:    useGPU,
		converter: converter,
		logger:    logger,
		run:       execRunner,
	}
}

// Name identifies the backend
func (w *WhisperCppModel) Name() string {
	return config.BackendWhisperCpp
}

func (w *WhisperCppModel) args(wavPath, outputBase string, opts Options) []string {
	language := opts.Language
	if language == "" {
		language = "auto"
	}
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", language,
		"-oj",
		"-of", outputBase,
		"-np",
	}
	if !opts.ConditionOnPreviousText {
		args = append(args, "-mc", "0")
	}
	if !w.useGPU {
		args = append(args, "-ng")
	}
	return args
}

// Transcribe converts the input to WAV, runs whisper.cpp and decodes its JSON
func (w *WhisperCppModel) Transcribe(ctx context.Context, audioPath string, opts Options) ([]transcript.Segment, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, ErrModelClosed
	}

	workDir, err := os.MkdirTemp("", "onetwo-whispercpp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper.cpp work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "input.wav")
	if err := w.converter.ConvertToWAV(ctx, audioPath, wavPath); err != nil {
		return nil, err
	}

	outputBase := filepath.Join(workDir, "output")
	args := w.args(wavPath, outputBase, opts)
	w.logger.Debug("running whisper.cpp", zap.String("binary", w.binary), zap.Strings("args", args))

	if output, err := w.run(ctx, w.binary, args...); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper.cpp cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("whisper.cpp failed: %w: %s", err, tail(string(output), 400))
	}

	data, err := os.ReadFile(outputBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp produced no JSON output: %w", err)
	}

	segments, err := decodeWhisperCppOutput(data)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("whisper.cpp finished", zap.Int("segments", len(segments)))
	return segments, nil
}

// decodeWhisperCppOutput maps millisecond offsets to seconds
func decodeWhisperCppOutput(data []byte) ([]transcript.Segment, error) {
	var out whisperCppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode whisper.cpp output: %w", err)
	}

	raw := make([]transcript.RawSegment, len(out.Transcription))
	for i, entry := range out.Transcription {
		raw[i].Text = entry.Text
		if entry.Offsets == nil {
			continue
		}
		raw[i].Start = millisToSeconds(entry.Offsets.From)
		raw[i].End = millisToSeconds(entry.Offsets.To)
	}

	segments, err := transcript.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp returned malformed segments: %w", err)
	}
	return segments, nil
}

func millisToSeconds(ms *float64) *float64 {
	if ms == nil {
		return nil
	}
	seconds := *ms / 1000
	return &seconds
}

// Close marks the model unusable; in-flight jobs finish first
func (w *WhisperCppModel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
