package transcriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ProgressFunc is told how many bytes have been written out of total (-1 when unknown)
type ProgressFunc func(written, total int64)

// ModelInfo describes a ggml model in the catalogue
type ModelInfo struct {
	Name      string
	SizeBytes int64
	Path      string
	Installed bool
}

// catalogue lists the published ggml models with their approximate sizes
var catalogue = []struct {
	name string
	size int64
}{
	{"tiny.en", 75_000_000},
	{"tiny", 75_000_000},
	{"base.en", 142_000_000},
	{"base", 142_000_000},
	{"small.en", 466_000_000},
	{"small", 466_000_000},
	{"medium.en", 1_500_000_000},
	{"medium", 1_500_000_000},
	{"large-v1", 2_900_000_000},
	{"large-v2", 2_900_000_000},
	{"large-v3", 2_900_000_000},
	{"large-v3-turbo", 1_600_000_000},
}

// ModelDownloader handles downloading Whisper models from HuggingFace
type ModelDownloader struct {
	logger    *zap.Logger
	modelsDir string
	client    *http.Client
	baseURL   string
	progress  ProgressFunc
}

// NewModelDownloader creates a new model downloader instance
func NewModelDownloader(logger *zap.Logger, modelsDir string) *ModelDownloader {
	return &ModelDownloader{
		logger:    logger,
		modelsDir: modelsDir,
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		baseURL: defaultModelBaseURL,
	}
}

// SetProgress installs a callback invoked as download bytes arrive
func (d *ModelDownloader) SetProgress(fn ProgressFunc) {
	d.progress = fn
}

// ListModels returns the catalogue with local install state
func (d *ModelDownloader) ListModels() []ModelInfo {
	models := make([]ModelInfo, 0, len(catalogue))
	for _, entry := range catalogue {
		path := d.GetModelPath(entry.name)
		_, err := os.Stat(path)
		models = append(models, ModelInfo{
			Name:      entry.name,
			SizeBytes: entry.size,
			Path:      path,
			Installed: err == nil,
		})
	}
	return models
}

// EnsureModelExists checks if a model file exists, and downloads it if it doesn't
func (d *ModelDownloader) EnsureModelExists(ctx context.Context, modelName, modelPath string) error {
	if _, err := os.Stat(modelPath); err == nil {
		d.logger.Info("model already exists",
			zap.String("model", modelName),
			zap.String("path", modelPath))
		return nil
	}

	canonical, ok := d.CanonicalModelName(modelName)
	if !ok {
		return fmt.Errorf("model %s not found at %s and is not a downloadable model", modelName, modelPath)
	}

	d.logger.Info("model not found locally, attempting download",
		zap.String("model", modelName),
		zap.String("path", modelPath))

	if err := os.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	return d.downloadModel(ctx, canonical, modelPath)
}

func (d *ModelDownloader) downloadModel(ctx context.Context, modelName, modelPath string) error {
	url := fmt.Sprintf("%s/ggml-%s.bin", d.baseURL, modelName)

	d.logger.Info("downloading model",
		zap.String("model", modelName),
		zap.String("url", url),
		zap.String("destination", modelPath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "onetwo-transcript (Go HTTP Client)")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	// Write next to the destination so the rename stays on one filesystem
	tempFile := modelPath + ".tmp"
	defer os.Remove(tempFile)

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := d.copyWithProgress(out, resp.Body, resp.ContentLength, modelName)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download model data: %w", err)
	}

	if err := os.Rename(tempFile, modelPath); err != nil {
		return fmt.Errorf("failed to move downloaded model to final location: %w", err)
	}

	d.logger.Info("model download completed successfully",
		zap.String("model", modelName),
		zap.String("path", modelPath),
		zap.Int64("bytes", written))

	return nil
}

// copyWithProgress copies data from src to dst, logging periodically and
// reporting every chunk to the progress callback
func (d *ModelDownloader) copyWithProgress(dst io.Writer, src io.Reader, totalSize int64, modelName string) (int64, error) {
	buffer := make([]byte, 32*1024)

	var written int64
	lastLogTime := time.Now()
	const logInterval = 10 * time.Second

	for {
		nr, er := src.Read(buffer)
		if nr > 0 {
			nw, ew := dst.Write(buffer[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}

			if d.progress != nil {
				d.progress(written, totalSize)
			}

			if now := time.Now(); now.Sub(lastLogTime) >= logInterval {
				fields := []zap.Field{zap.String("model", modelName), zap.Int64("downloaded", written)}
				if totalSize > 0 {
					fields = append(fields,
						zap.Int64("total", totalSize),
						zap.Float64("percentage", float64(written)/float64(totalSize)*100))
				}
				d.logger.Info("download progress", fields...)
				lastLogTime = now
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			return written, nil
		}
	}
}

// GetModelPath returns the full path for a given model name
func (d *ModelDownloader) GetModelPath(modelName string) string {
	return filepath.Join(d.modelsDir, fmt.Sprintf("ggml-%s.bin", modelName))
}

// CanonicalModelName matches modelName against the catalogue ignoring case and
// returns the catalogue spelling, which is what the download URL needs
func (d *ModelDownloader) CanonicalModelName(modelName string) (string, bool) {
	for _, entry := range catalogue {
		if strings.EqualFold(entry.name, modelName) {
			return entry.name, true
		}
	}
	return "", false
}
