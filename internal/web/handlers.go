package web

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"onetwotranscript/internal/logger"
	"onetwotranscript/internal/processor"
	"onetwotranscript/internal/transcriber"
	"onetwotranscript/internal/transcript"
)

// requestError is an error with a fixed HTTP status and kind
type requestError struct {
	status int
	kind   string
	msg    string
}

func (e *requestError) Error() string {
	return e.msg
}

func badRequest(kind, format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, kind: kind, msg: fmt.Sprintf(format, args...)}
}

// classify maps an error to a status code and a stable kind string
func classify(err error) (int, string) {
	var reqErr *requestError
	var fmtErr *formatError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.kind
	case errors.As(err, &fmtErr):
		return http.StatusUnprocessableEntity, "invalid_segment"
	case errors.Is(err, transcriber.ErrEmptyAudio):
		return http.StatusBadRequest, "empty_audio"
	case errors.Is(err, transcript.ErrInvalidSegment):
		return http.StatusBadGateway, "invalid_segment"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "cancelled"
	case errors.Is(err, transcriber.ErrModelClosed), errors.Is(err, processor.ErrFFmpegNotFound):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Service) page(errMsg string, result *resultView) pageData {
	return pageData{
		ProductName:     productName,
		Accept:          acceptAttr(s.extensions),
		ExtensionsLabel: extensionsLabel(s.extensions),
		MaxUpload:       humanize.IBytes(uint64(s.maxUpload)),
		Notice:          "Les fichiers sont traités sur ce serveur puis supprimés.",
		Error:           errMsg,
		Result:          result,
	}
}

func (s *Service) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", s.page("", nil))
}

// receiveUpload validates the "audio" form file and stages it under a unique
// name in the upload directory. The caller removes the returned path.
func (s *Service) receiveUpload(c *gin.Context) (string, string, error) {
	// Multipart framing adds a little on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)

	header, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", &requestError{status: http.StatusRequestEntityTooLarge, kind: "too_large",
				msg: fmt.Sprintf("fichier trop volumineux (limite %s)", humanize.IBytes(uint64(s.maxUpload)))}
		}
		if errors.Is(err, http.ErrMissingFile) {
			return "", "", badRequest("invalid_upload", "aucun fichier audio reçu")
		}
		return "", "", badRequest("invalid_upload", "formulaire invalide: %v", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if _, ok := s.allowed[ext]; !ok {
		return "", "", &requestError{status: http.StatusUnsupportedMediaType, kind: "unsupported_media",
			msg: fmt.Sprintf("format non pris en charge %q (acceptés: %s)", ext, extensionsLabel(s.extensions))}
	}
	if header.Size > s.maxUpload {
		return "", "", &requestError{status: http.StatusRequestEntityTooLarge, kind: "too_large",
			msg: fmt.Sprintf("fichier trop volumineux (limite %s)", humanize.IBytes(uint64(s.maxUpload)))}
	}

	staged := filepath.Join(s.uploadDir, "onetwo-"+uuid.NewString()+"."+ext)
	if err := c.SaveUploadedFile(header, staged); err != nil {
		_ = os.Remove(staged)
		return "", "", fmt.Errorf("failed to stage upload: %w", err)
	}
	return staged, header.Filename, nil
}

// runUpload is the whole pipeline shared by the form and the API
func (s *Service) runUpload(c *gin.Context) (*StoredResult, error) {
	staged, filename, err := s.receiveUpload(c)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove staged upload", zap.String("path", staged), zap.Error(err))
		}
	}()

	result, err := s.engine.Transcribe(c.Request.Context(), staged)
	if err != nil {
		return nil, err
	}

	doc, err := transcript.Render(transcript.TitleFromFilename(filename), result.Segments)
	if err != nil {
		return nil, err
	}

	stored := s.results.Put(StoredResult{
		Document: doc,
		Segments: result.Segments,
		Filename: filename,
		Backend:  result.Backend,
		Model:    result.Model,
		Language: result.Language,
		Cached:   result.Cached,
		Duration: result.Duration,
	})

	if s.journal != nil {
		if err := s.journal.WriteRecord(logger.TranscriptionRecord{
			ID:           stored.ID,
			Title:        doc.Title,
			Filename:     filename,
			AudioBytes:   result.AudioBytes,
			Backend:      result.Backend,
			Model:        result.Model,
			Language:     result.Language,
			Segments:     len(result.Segments),
			AudioSeconds: result.AudioSeconds(),
			ProcessingMS: result.Duration.Milliseconds(),
			Cached:       result.Cached,
		}); err != nil {
			s.logger.Warn("failed to write transcription journal", zap.Error(err))
		}
	}

	return stored, nil
}

func downloadURL(id, format string) string {
	return "/download/" + id + "/" + format
}

func (s *Service) handleTranscribeForm(c *gin.Context) {
	stored, err := s.runUpload(c)
	if err != nil {
		status, kind := classify(err)
		_ = c.Error(err)
		s.logger.Warn("transcription request failed", zap.String("kind", kind), zap.Error(err))
		c.HTML(status, "index", s.page(err.Error(), nil))
		return
	}

	c.HTML(http.StatusOK, "index", s.page("", &resultView{
		Title:    stored.Document.Title,
		Plain:    stored.Document.Plain,
		Segments: len(stored.Segments),
		Cached:   stored.Cached,
		Duration: stored.Duration.Round(time.Millisecond).String(),
		TxtURL:   downloadURL(stored.ID, "txt"),
		SrtURL:   downloadURL(stored.ID, "srt"),
	}))
}

func (s *Service) handleDownload(c *gin.Context) {
	stored, ok := s.results.Get(c.Param("id"))
	if !ok {
		c.String(http.StatusNotFound, "transcription introuvable ou expirée")
		return
	}

	var body, name, contentType string
	switch c.Param("format") {
	case "txt":
		body, name, contentType = stored.Document.Plain, stored.Document.PlainFilename(), "text/plain; charset=utf-8"
	case "srt":
		body, name, contentType = stored.Document.Subtitles, stored.Document.SubtitleFilename(), "application/x-subrip; charset=utf-8"
	default:
		c.String(http.StatusNotFound, "format inconnu")
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, contentType, []byte(body))
}

type filesResponse struct {
	TXT string `json:"txt"`
	SRT string `json:"srt"`
}

type transcriptionResponse struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Backend      string               `json:"backend"`
	Model        string               `json:"model"`
	Language     string               `json:"language"`
	Cached       bool                 `json:"cached"`
	ProcessingMS int64                `json:"processing_ms"`
	Segments     []transcript.Segment `json:"segments"`
	Plain        string               `json:"plain"`
	Subtitles    string               `json:"subtitles"`
	Files        filesResponse        `json:"files"`
	Downloads    filesResponse        `json:"downloads"`
}

func abortJSON(c *gin.Context, err error) {
	status, kind := classify(err)
	_ = c.Error(err)
	body := gin.H{"error": err.Error(), "kind": kind}
	var segErr *transcript.SegmentError
	if errors.As(err, &segErr) && segErr.Index >= 0 {
		body["index"] = segErr.Index
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Service) handleAPITranscribe(c *gin.Context) {
	stored, err := s.runUpload(c)
	if err != nil {
		abortJSON(c, err)
		return
	}

	segments := stored.Segments
	if segments == nil {
		segments = []transcript.Segment{}
	}
	c.JSON(http.StatusOK, transcriptionResponse{
		ID:           stored.ID,
		Title:        stored.Document.Title,
		Backend:      stored.Backend,
		Model:        stored.Model,
		Language:     stored.Language,
		Cached:       stored.Cached,
		ProcessingMS: stored.Duration.Milliseconds(),
		Segments:     segments,
		Plain:        stored.Document.Plain,
		Subtitles:    stored.Document.Subtitles,
		Files:        filesResponse{TXT: stored.Document.PlainFilename(), SRT: stored.Document.SubtitleFilename()},
		Downloads:    filesResponse{TXT: downloadURL(stored.ID, "txt"), SRT: downloadURL(stored.ID, "srt")},
	})
}

type formatRequest struct {
	Title    string                  `json:"title"`
	Filename string                  `json:"filename"`
	Segments []transcript.RawSegment `json:"segments"`
}

type formatResponse struct {
	Title     string        `json:"title"`
	Plain     string        `json:"plain"`
	Subtitles string        `json:"subtitles"`
	Files     filesResponse `json:"files"`
}

func (s *Service) handleAPIFormat(c *gin.Context) {
	var req formatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, badRequest("bad_request", "invalid JSON body: %v", err))
		return
	}

	segments, err := transcript.FromRaw(req.Segments)
	if err != nil {
		abortJSON(c, &formatError{err: err})
		return
	}

	title := req.Title
	if title == "" && req.Filename != "" {
		title = transcript.TitleFromFilename(req.Filename)
	}

	doc, err := transcript.Render(title, segments)
	if err != nil {
		abortJSON(c, &formatError{err: err})
		return
	}

	c.JSON(http.StatusOK, formatResponse{
		Title:     doc.Title,
		Plain:     doc.Plain,
		Subtitles: doc.Subtitles,
		Files:     filesResponse{TXT: doc.PlainFilename(), SRT: doc.SubtitleFilename()},
	})
}

// formatError marks caller-supplied segments, which are a 422 rather than an
// upstream engine fault
type formatError struct {
	err error
}

func (e *formatError) Error() string { return e.err.Error() }
func (e *formatError) Unwrap() error { return e.err }

func (s *Service) handleStats(c *gin.Context) {
	metrics := s.engine.GetPerformanceMetrics()
	body := gin.H{
		"performance":       metrics,
		"real_time_factor":  metrics.RealTimeFactor(),
		"summary":           s.engine.GetPerformanceSummary(),
		"device_comparison": s.engine.CompareGPUvsCPU(),
		"stored_results":    s.results.Len(),
	}
	if s.cacheStats != nil {
		stats, err := s.cacheStats.Stats(c.Request.Context())
		if err != nil {
			s.logger.Warn("failed to read cache stats", zap.Error(err))
		} else {
			body["cache"] = stats
		}
	}
	c.JSON(http.StatusOK, body)
}
