package transcriber

import (
	"context"
	"errors"
	"os/exec"

	"onetwotranscript/internal/transcript"
)

// ErrModelClosed is returned by a model used after Close
var ErrModelClosed = errors.New("transcription model closed")

// Options are the fixed decoding options applied to every job
type Options struct {
	Model                   string
	Language                string
	ConditionOnPreviousText bool
}

// Model is a long-lived speech-to-text handle. It is created once at start-up,
// shared by every request and closed on shutdown.
type Model interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string, opts Options) ([]transcript.Segment, error)
	Close() error
}

// CommandRunner executes an external command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
