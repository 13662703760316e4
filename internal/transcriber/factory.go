package transcriber

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
	"onetwotranscript/internal/gpu"
	"onetwotranscript/internal/performance"
	"onetwotranscript/internal/processor"
)

// NewModelFromConfig builds the configured backend. For whisper.cpp the ggml
// model is downloaded first when missing.
func NewModelFromConfig(ctx context.Context, cfg *config.Configuration, logger *zap.Logger) (Model, bool, error) {
	switch cfg.GetWhisperBackend() {
	case config.BackendWhisper:
		device := gpu.NewGPUDetector(logger).ResolveDevice(ctx, cfg.GetWhisperDevice())
		return NewWhisperCLIModel(cfg.GetWhisperBinary(), device, logger), device == config.DeviceCUDA, nil

	case config.BackendWhisperCpp:
		modelPath := cfg.GetWhisperModelPath()
		downloader := NewModelDownloader(logger, cfg.GetModelsDir())
		if err := downloader.EnsureModelExists(ctx, cfg.GetWhisperModel(), modelPath); err != nil {
			return nil, false, fmt.Errorf("failed to prepare whisper.cpp model: %w", err)
		}
		useGPU := gpu.NewGPUDetector(logger).ResolveDevice(ctx, cfg.GetWhisperDevice()) == config.DeviceCUDA
		converter := processor.NewAudioProcessor(cfg.GetFFmpegPath(), logger)
		return NewWhisperCppModel(cfg.GetWhisperCppBinary(), modelPath, useGPU, converter, logger), useGPU, nil

	case config.BackendOpenAI:
		model := NewOpenAIModel(cfg.GetOpenAIBaseURL(), cfg.GetOpenAIAPIKey(), cfg.GetOpenAIModel(),
			cfg.GetTranscriptionTimeout(), logger)
		return model, false, nil

	default:
		return nil, false, fmt.Errorf("unknown transcription backend %q", cfg.GetWhisperBackend())
	}
}

// OptionsFromConfig returns the fixed decoding options. The model label for the
// openai backend is the remote model name.
func OptionsFromConfig(cfg *config.Configuration) Options {
	opts := Options{
		Model:                   cfg.GetWhisperModel(),
		Language:                cfg.GetWhisperLanguage(),
		ConditionOnPreviousText: cfg.GetConditionOnPreviousText(),
	}
	if cfg.GetWhisperBackend() == config.BackendOpenAI {
		opts.Model = cfg.GetOpenAIModel()
	}
	return opts
}

// NewEngineFromConfig wires model, options, limits and monitoring. resultCache may be nil.
func NewEngineFromConfig(ctx context.Context, cfg *config.Configuration, logger *zap.Logger, resultCache ResultCache) (*TranscriptionEngine, error) {
	model, useGPU, err := NewModelFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := NewTranscriptionEngine(model, OptionsFromConfig(cfg), logger)
	engine.SetTimeout(cfg.GetTranscriptionTimeout())
	engine.SetConcurrency(cfg.GetTranscriptionConcurrency())
	engine.SetGPU(useGPU)
	engine.SetPerformanceMonitor(performance.NewPerformanceMonitorWithBenchmark(logger, cfg.GetBenchmarkMode()))
	if resultCache != nil {
		engine.SetCache(resultCache)
	}

	logger.Info("transcription engine ready",
		zap.String("backend", model.Name()),
		zap.String("model", engine.Options().Model),
		zap.String("language", engine.Options().Language),
		zap.Bool("gpu", useGPU))
	return engine, nil
}
