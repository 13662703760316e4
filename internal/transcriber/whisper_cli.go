package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
	"onetwotranscript/internal/transcript"
)

// WhisperCLIModel drives the openai-whisper command line tool
type WhisperCLIModel struct {
	binary string
	device string
	logger *zap.Logger
	run    CommandRunner

	mu     sync.RWMutex
	closed bool
}

type whisperCLIOutput struct {
	Language string                  `json:"language"`
	Segments []transcript.RawSegment `json:"segments"`
}

// NewWhisperCLIModel creates a model running binary on device (cpu or cuda)
func NewWhisperCLIModel(binary, device string, logger *zap.Logger) *WhisperCLIModel {
	return &WhisperCLIModel{
		binary: binary,
		device: device,
		logger: logger,
		run:    execRunner,
	}
}

// Name identifies the backend
func (w *WhisperCLIModel) Name() string {
	return config.BackendWhisper
}

func pythonBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func (w *WhisperCLIModel) args(audioPath, outputDir string, opts Options) []string {
	args := []string{
		audioPath,
		"--model", opts.Model,
		"--task", "transcribe",
		"--condition_on_previous_text", pythonBool(opts.ConditionOnPreviousText),
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
		"--device", w.device,
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if w.device != config.DeviceCUDA {
		args = append(args, "--fp16", "False")
	}
	return args
}

// Transcribe runs whisper on audioPath and decodes its JSON result
func (w *WhisperCLIModel) Transcribe(ctx context.Context, audioPath string, opts Options) ([]transcript.Segment, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, ErrModelClosed
	}

	outputDir, err := os.MkdirTemp("", "onetwo-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := w.args(audioPath, outputDir, opts)
	w.logger.Debug("running whisper", zap.String("binary", w.binary), zap.Strings("args", args))

	if output, err := w.run(ctx, w.binary, args...); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("whisper failed: %w: %s", err, tail(string(output), 400))
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisper produced no JSON output: %w", err)
	}

	var out whisperCLIOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode whisper output: %w", err)
	}

	segments, err := transcript.FromRaw(out.Segments)
	if err != nil {
		return nil, fmt.Errorf("whisper returned malformed segments: %w", err)
	}

	w.logger.Debug("whisper finished",
		zap.Int("segments", len(segments)),
		zap.String("detected_language", out.Language))
	return segments, nil
}

// Close marks the model unusable; in-flight jobs finish first
func (w *WhisperCLIModel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
