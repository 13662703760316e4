package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"onetwotranscript/internal/cache"
	"onetwotranscript/internal/performance"
	"onetwotranscript/internal/transcript"
)

// ErrEmptyAudio is returned for zero-length uploads
var ErrEmptyAudio = errors.New("audio file is empty")

// ResultCache stores finished transcriptions by content key
type ResultCache interface {
	Lookup(ctx context.Context, key string) (*cache.Entry, bool, error)
	Put(ctx context.Context, entry cache.Entry) error
}

// Result is the outcome of a single transcription job
type Result struct {
	Segments   []transcript.Segment
	Backend    string
	Model      string
	Language   string
	Cached     bool
	AudioBytes int64
	Duration   time.Duration
}

// AudioSeconds is the end of the last segment
func (r *Result) AudioSeconds() float64 {
	if len(r.Segments) == 0 {
		return 0
	}
	return r.Segments[len(r.Segments)-1].End
}

// TranscriptionEngine owns the model handle and runs jobs against it with
// the fixed options, consulting the cache first
type TranscriptionEngine struct {
	logger             *zap.Logger
	model              Model
	opts               Options
	cache              ResultCache
	performanceMonitor *performance.PerformanceMonitor
	timeout            time.Duration
	useGPU             bool
	slots              chan struct{}
}

// NewTranscriptionEngine creates an engine around an already constructed model
func NewTranscriptionEngine(model Model, opts Options, logger *zap.Logger) *TranscriptionEngine {
	return &TranscriptionEngine{
		logger:             logger,
		model:              model,
		opts:               opts,
		performanceMonitor: performance.NewPerformanceMonitor(logger),
		slots:              make(chan struct{}, 1),
	}
}

// SetCache enables result caching
func (te *TranscriptionEngine) SetCache(c ResultCache) {
	te.cache = c
}

// SetTimeout bounds each job; zero means no limit beyond the caller's context
func (te *TranscriptionEngine) SetTimeout(timeout time.Duration) {
	te.timeout = timeout
}

// SetConcurrency sets how many jobs may run at once. Call before first use.
func (te *TranscriptionEngine) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	te.slots = make(chan struct{}, n)
}

// SetGPU records whether the model runs on a GPU, for metrics
func (te *TranscriptionEngine) SetGPU(useGPU bool) {
	te.useGPU = useGPU
}

// SetPerformanceMonitor replaces the default monitor
func (te *TranscriptionEngine) SetPerformanceMonitor(pm *performance.PerformanceMonitor) {
	te.performanceMonitor = pm
}

// Options returns the fixed decoding options
func (te *TranscriptionEngine) Options() Options {
	return te.opts
}

// Backend returns the model's backend name
func (te *TranscriptionEngine) Backend() string {
	return te.model.Name()
}

func (te *TranscriptionEngine) cacheKey(audioPath string) (string, int64, error) {
	return cache.KeyForFile(audioPath, cache.KeyParams{
		Backend:                 te.model.Name(),
		Model:                   te.opts.Model,
		Language:                te.opts.Language,
		ConditionOnPreviousText: te.opts.ConditionOnPreviousText,
	})
}

// Transcribe runs the model over the audio file at audioPath
func (te *TranscriptionEngine) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("audio file unavailable: %w", err)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyAudio
	}

	result := &Result{
		Backend:    te.model.Name(),
		Model:      te.opts.Model,
		Language:   te.opts.Language,
		AudioBytes: info.Size(),
	}
	started := time.Now()

	var key string
	if te.cache != nil {
		key, _, err = te.cacheKey(audioPath)
		if err != nil {
			te.logger.Warn("cache key computation failed", zap.Error(err))
		} else if entry, found, lookupErr := te.cache.Lookup(ctx, key); lookupErr != nil {
			te.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(lookupErr))
		} else if found {
			te.performanceMonitor.RecordCacheHit(info.Size())
			result.Segments = entry.Segments
			result.Cached = true
			result.Duration = time.Since(started)
			te.logger.Info("transcription served from cache",
				zap.String("key", key),
				zap.Int("segments", len(entry.Segments)))
			return result, nil
		}
	}

	select {
	case te.slots <- struct{}{}:
		defer func() { <-te.slots }()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for transcription slot: %w", ctx.Err())
	}

	jobCtx := ctx
	if te.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, te.timeout)
		defer cancel()
	}

	te.logger.Info("starting transcription",
		zap.String("backend", result.Backend),
		zap.String("model", result.Model),
		zap.String("language", result.Language),
		zap.Int64("audio_bytes", result.AudioBytes))

	timer := te.performanceMonitor.StartTranscription(info.Size(), result.Backend, te.useGPU)
	segments, err := te.model.Transcribe(jobCtx, audioPath, te.opts)
	if err != nil {
		te.performanceMonitor.FailTranscription(timer)
		te.logger.Error("transcription failed", zap.String("backend", result.Backend), zap.Error(err))
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	if err := transcript.ValidateSegments(segments); err != nil {
		te.performanceMonitor.FailTranscription(timer)
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	result.Segments = segments
	te.performanceMonitor.EndTranscription(timer, len(segments), result.AudioSeconds())
	result.Duration = time.Since(started)

	te.logger.Info("transcription completed",
		zap.Int("segments", len(segments)),
		zap.Duration("duration", result.Duration))

	if te.cache != nil && key != "" {
		if err := te.cache.Put(ctx, cache.Entry{
			Key:        key,
			Backend:    result.Backend,
			Model:      result.Model,
			Language:   result.Language,
			Segments:   segments,
			AudioBytes: result.AudioBytes,
		}); err != nil {
			te.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}

	return result, nil
}

// Close releases the model
func (te *TranscriptionEngine) Close() error {
	te.logger.Info("closing transcription engine")

	if te.model != nil {
		if err := te.model.Close(); err != nil {
			te.logger.Error("failed to close model", zap.Error(err))
			return fmt.Errorf("failed to close model: %w", err)
		}
	}
	return nil
}

// GetPerformanceMetrics returns current performance metrics
func (te *TranscriptionEngine) GetPerformanceMetrics() performance.PerformanceMetrics {
	return te.performanceMonitor.GetMetrics()
}

// GetPerformanceSummary returns a formatted performance summary
func (te *TranscriptionEngine) GetPerformanceSummary() string {
	return te.performanceMonitor.GetPerformanceSummary()
}

// CompareGPUvsCPU returns the measured per-device processing averages
func (te *TranscriptionEngine) CompareGPUvsCPU() string {
	return te.performanceMonitor.CompareGPUvsCPU()
}

// LogCurrentPerformanceMetrics logs the current performance metrics
func (te *TranscriptionEngine) LogCurrentPerformanceMetrics() {
	te.performanceMonitor.LogCurrentMetrics()
}
