package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onetwotranscript/internal/cache"
	"onetwotranscript/internal/config"
	"onetwotranscript/internal/logger"
	"onetwotranscript/internal/performance"
	"onetwotranscript/internal/transcriber"
)

const (
	productName   = "OneTwo Transcript"
	shutdownGrace = 15 * time.Second
)

// Transcriber runs one job against the shared model
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcriber.Result, error)
	GetPerformanceMetrics() performance.PerformanceMetrics
	GetPerformanceSummary() string
	CompareGPUvsCPU() string
}

// Journal records completed transcriptions
type Journal interface {
	WriteRecord(record logger.TranscriptionRecord) error
}

// CacheStats reports transcript cache totals
type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// Service is the HTTP front end: upload page, downloads and JSON API
type Service struct {
	engine     Transcriber
	results    *ResultStore
	journal    Journal
	cacheStats CacheStats
	logger     *zap.Logger

	addr       string
	uploadDir  string
	maxUpload  int64
	extensions []string
	allowed    map[string]struct{}

	router *gin.Engine
	mu     sync.Mutex
	server *http.Server
}

// NewService builds the router around engine
func NewService(cfg *config.Configuration, engine Transcriber, logger *zap.Logger) *Service {
	if gin.Mode() != gin.TestMode {
		if cfg.GetDebugMode() {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Warn("failed to set trusted proxies", zap.Error(err))
	}
	router.MaxMultipartMemory = 32 << 20
	router.Use(
		requestLogger(logger, "/health"),
		recovery(logger),
	)
	router.SetHTMLTemplate(loadTemplates())

	extensions := cfg.GetAllowedExtensions()
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[ext] = struct{}{}
	}

	s := &Service{
		engine:     engine,
		results:    NewResultStore(cfg.GetResultTTL(), logger),
		logger:     logger,
		addr:       cfg.GetServerAddr(),
		uploadDir:  cfg.GetUploadDir(),
		maxUpload:  cfg.GetMaxUploadBytes(),
		extensions: extensions,
		allowed:    allowed,
		router:     router,
	}

	s.initRouter()
	return s
}

// SetJournal enables the transcription journal
func (s *Service) SetJournal(journal Journal) {
	s.journal = journal
}

// SetCacheStats exposes cache totals on the stats endpoint
func (s *Service) SetCacheStats(stats CacheStats) {
	s.cacheStats = stats
}

// Router returns the gin engine, for tests and embedding
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Results returns the download store
func (s *Service) Results() *ResultStore {
	return s.results
}

func (s *Service) initRouter() {
	s.router.GET("/", s.handleIndex)
	s.router.POST("/transcribe", s.handleTranscribeForm)
	s.router.GET("/download/:id/:format", s.handleDownload)
	s.router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := s.router.Group("/api/v1")
	{
		api.POST("/transcriptions", s.handleAPITranscribe)
		api.POST("/format", s.handleAPIFormat)
		api.GET("/stats", s.handleStats)
	}

	s.router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "kind": "not_found"})
			return
		}
		c.Redirect(http.StatusFound, "/")
	})
}

// Listen binds the configured address; pass the listener to Serve
func (s *Service) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return ln, nil
}

// Serve serves on ln until Stop is called. It also runs the result janitor.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	go s.results.Run(ctx)

	// Cancelling ctx also drains the server
	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
			}
		case <-served:
		}
	}()

	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, letting in-flight requests finish within ctx
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
