package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandRunner runs a command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ErrFFmpegNotFound is returned when the ffmpeg executable cannot be located
var ErrFFmpegNotFound = errors.New("ffmpeg executable not found")

// AudioProcessor converts uploaded audio into the WAV layout whisper.cpp expects
type AudioProcessor struct {
	logger     *zap.Logger
	ffmpegPath string
	run        CommandRunner
}

// NewAudioProcessor creates a new AudioProcessor instance
func NewAudioProcessor(ffmpegPath string, logger *zap.Logger) *AudioProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &AudioProcessor{
		logger:     logger,
		ffmpegPath: ffmpegPath,
		run:        execRunner,
	}
}

// conversionArgs produces 16kHz mono signed 16-bit PCM
func conversionArgs(src, dst string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-y",
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dst,
	}
}

// ConvertToWAV transcodes src into dst. A partially written dst is removed on failure.
func (a *AudioProcessor) ConvertToWAV(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("audio input unavailable: %w", err)
	}

	a.logger.Debug("converting audio with ffmpeg",
		zap.String("src", src),
		zap.String("dst", dst))

	output, err := a.run(ctx, a.ffmpegPath, conversionArgs(src, dst)...)
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrFFmpegNotFound, a.ffmpegPath)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg conversion cancelled: %w", ctxErr)
		}
		detail := lastErrorLine(string(output))
		a.logger.Warn("ffmpeg conversion failed",
			zap.String("src", src),
			zap.String("detail", detail),
			zap.Error(err))
		return fmt.Errorf("ffmpeg conversion failed: %s: %w", detail, err)
	}

	a.logger.Debug("ffmpeg conversion completed", zap.String("dst", dst))
	return nil
}

// Available reports whether the configured ffmpeg binary can be resolved
func (a *AudioProcessor) Available() bool {
	_, err := exec.LookPath(a.ffmpegPath)
	return err == nil
}

var errorIndicators = []string{
	"Error opening",
	"Invalid data",
	"No such file",
	"Permission denied",
	"does not contain any stream",
}

// containsFFmpegError checks if stderr output contains actual errors vs info
func containsFFmpegError(output string) bool {
	for _, indicator := range errorIndicators {
		if strings.Contains(output, indicator) {
			return true
		}
	}
	return false
}

// lastErrorLine picks the most useful line from ffmpeg's chatty stderr
func lastErrorLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if containsFFmpegError(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return "no output"
}
