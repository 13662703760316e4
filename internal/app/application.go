package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"onetwotranscript/internal/cache"
	"onetwotranscript/internal/config"
	"onetwotranscript/internal/logger"
	"onetwotranscript/internal/transcriber"
	"onetwotranscript/internal/web"
)

const (
	shutdownTimeout    = 15 * time.Second
	cachePruneInterval = time.Hour
)

// Engine is the transcription engine as the application drives it
type Engine interface {
	web.Transcriber
	Close() error
}

// ServiceHealth tracks what the health file reports
type ServiceHealth struct {
	mu              sync.RWMutex
	startedAt       time.Time
	serverListening bool
	listenAddr      string
	lastServerError string
}

// Application wires configuration, engine, cache, journal and web service
type Application struct {
	config    *config.Configuration
	zapLogger *zap.Logger
	engine    Engine
	cache     *cache.Store
	logOutput *logger.LogOutput
	service   *web.Service
	health    *ServiceHealth

	lastPrune time.Time
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(ctx context.Context, cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store *cache.Store
	if cfg.GetCacheEnabled() {
		var err error
		store, err = cache.Open(ctx, cfg.GetCachePath(), zapLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript cache: %w", err)
		}
	}

	var resultCache transcriber.ResultCache
	if store != nil {
		resultCache = store
	}

	engine, err := transcriber.NewEngineFromConfig(ctx, cfg, zapLogger, resultCache)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to create transcription engine: %w", err)
	}

	app, err := newApplication(cfg, zapLogger, engine, store)
	if err != nil {
		_ = engine.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return app, nil
}

// newApplication builds the application around an existing engine; store may be nil
func newApplication(cfg *config.Configuration, zapLogger *zap.Logger, engine Engine, store *cache.Store) (*Application, error) {
	logOutput, err := logger.NewLogOutput(cfg, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create log output: %w", err)
	}

	service := web.NewService(cfg, engine, zapLogger)
	service.SetJournal(logOutput)
	if store != nil {
		service.SetCacheStats(store)
	}

	return &Application{
		config:    cfg,
		zapLogger: zapLogger,
		engine:    engine,
		cache:     store,
		logOutput: logOutput,
		service:   service,
		health:    &ServiceHealth{startedAt: time.Now()},
	}, nil
}

// Service exposes the web service
func (app *Application) Service() *web.Service {
	return app.service
}

// Run serves HTTP until ctx is cancelled, then stops the server gracefully
func (app *Application) Run(ctx context.Context) error {
	app.zapLogger.Info("starting OneTwo Transcript",
		zap.String("addr", app.config.GetServerAddr()),
		zap.String("backend", app.config.GetWhisperBackend()),
		zap.String("model", app.config.GetWhisperModel()),
		zap.String("language", app.config.GetWhisperLanguage()),
		zap.Bool("cache", app.cache != nil))

	select {
	case <-ctx.Done():
		app.zapLogger.Info("context cancelled before startup, shutting down immediately")
		return nil
	default:
	}

	if err := os.MkdirAll(app.config.GetUploadDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	ln, err := app.service.Listen()
	if err != nil {
		return err
	}
	app.updateServerHealth(true, ln.Addr().String(), nil)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.service.Serve(runCtx, ln)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		app.startHeartbeat(runCtx)
		close(heartbeatDone)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
		app.updateServerHealth(false, "", err)
	case <-ctx.Done():
		app.zapLogger.Info("shutdown signal received, stopping HTTP server")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.service.Stop(stopCtx); err != nil {
			app.zapLogger.Error("error stopping HTTP server", zap.Error(err))
		}
		cancel()
		app.updateServerHealth(false, "", <-serveErr)
	}

	stop()
	<-heartbeatDone
	app.writeHealthFile()

	return runErr
}

// ListenAddr returns the bound address once Run is listening
func (app *Application) ListenAddr() string {
	app.health.mu.RLock()
	defer app.health.mu.RUnlock()
	return app.health.listenAddr
}

func (app *Application) updateServerHealth(listening bool, addr string, err error) {
	app.health.mu.Lock()
	defer app.health.mu.Unlock()
	app.health.serverListening = listening
	if addr != "" {
		app.health.listenAddr = addr
	}
	if err != nil {
		app.health.lastServerError = err.Error()
	}
}

// getHealthStatus returns the current health snapshot
func (app *Application) getHealthStatus() map[string]interface{} {
	app.health.mu.RLock()
	listening := app.health.serverListening
	addr := app.health.listenAddr
	lastErr := app.health.lastServerError
	startedAt := app.health.startedAt
	app.health.mu.RUnlock()

	metrics := app.engine.GetPerformanceMetrics()

	return map[string]interface{}{
		"server_listening":      listening,
		"listen_addr":           addr,
		"last_server_error":     lastErr,
		"uptime":                time.Since(startedAt).Round(time.Second).String(),
		"backend":               app.config.GetWhisperBackend(),
		"model":                 app.config.GetWhisperModel(),
		"total_transcriptions":  metrics.TotalTranscriptions,
		"failed_transcriptions": metrics.FailedTranscriptions,
		"cache_hits":            metrics.CacheHits,
		"real_time_factor":      metrics.RealTimeFactor(),
		"stored_results":        app.service.Results().Len(),
	}
}

// isSystemHealthy reports whether the service can accept uploads
func (app *Application) isSystemHealthy(healthStatus map[string]interface{}) bool {
	listening, _ := healthStatus["server_listening"].(bool)
	return listening
}

// writeHealthStatusFile writes the current health status to a file for container health checks
func (app *Application) writeHealthStatusFile() error {
	healthStatus := app.getHealthStatus()
	healthStatus["health_check_timestamp"] = time.Now().Format(time.RFC3339)
	healthStatus["healthy"] = app.isSystemHealthy(healthStatus)

	healthFile := app.config.GetHealthFile()
	if err := os.MkdirAll(filepath.Dir(healthFile), 0o755); err != nil {
		return fmt.Errorf("failed to create health file directory: %w", err)
	}

	data, err := json.MarshalIndent(healthStatus, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}

	// Written then renamed so readers never see a partial file
	tempFile := healthFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write health file: %w", err)
	}
	if err := os.Rename(tempFile, healthFile); err != nil {
		return fmt.Errorf("failed to rename health file: %w", err)
	}
	return nil
}

func (app *Application) writeHealthFile() {
	if err := app.writeHealthStatusFile(); err != nil {
		app.zapLogger.Error("failed to write health status file", zap.Error(err))
	}
}

// pruneCache drops cache entries unused for longer than the configured age
func (app *Application) pruneCache(ctx context.Context) {
	maxAge := app.config.GetCacheMaxAge()
	if app.cache == nil || maxAge <= 0 {
		return
	}
	if !app.lastPrune.IsZero() && time.Since(app.lastPrune) < cachePruneInterval {
		return
	}
	app.lastPrune = time.Now()

	removed, err := app.cache.Prune(ctx, maxAge)
	if err != nil {
		app.zapLogger.Warn("failed to prune transcript cache", zap.Error(err))
		return
	}
	if removed > 0 {
		app.zapLogger.Info("pruned transcript cache", zap.Int64("removed", removed), zap.Duration("max_age", maxAge))
	}
}

// startHeartbeat refreshes the health file and runs periodic maintenance
func (app *Application) startHeartbeat(ctx context.Context) {
	app.writeHealthFile()
	app.pruneCache(ctx)

	interval := app.config.GetHealthInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.writeHealthFile()
			app.pruneCache(ctx)

			if app.config.GetDebugMode() {
				app.zapLogger.Debug("heartbeat", zap.Any("health_status", app.getHealthStatus()))
			}
			if app.config.GetBenchmarkMode() {
				if lm, ok := app.engine.(interface{ LogCurrentPerformanceMetrics() }); ok {
					lm.LogCurrentPerformanceMetrics()
				}
			}
		}
	}
}

// Shutdown releases the model handle and the cache
func (app *Application) Shutdown() error {
	app.zapLogger.Info("shutting down application components")
	app.zapLogger.Info("transcription performance",
		zap.String("summary", app.engine.GetPerformanceSummary()),
		zap.String("device_comparison", app.engine.CompareGPUvsCPU()))

	if err := app.engine.Close(); err != nil {
		app.zapLogger.Error("error closing transcription engine", zap.Error(err))
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.zapLogger.Error("error closing transcript cache", zap.Error(err))
		}
	}

	app.zapLogger.Info("application shutdown completed")
	return nil
}
