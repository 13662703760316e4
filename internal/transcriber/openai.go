package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
	"onetwotranscript/internal/transcript"
)

// OpenAIModel calls an OpenAI-compatible /audio/transcriptions endpoint
type OpenAIModel struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

type openAIVerboseResponse struct {
	Language string                  `json:"language"`
	Duration float64                 `json:"duration"`
	Text     string                  `json:"text"`
	Segments []transcript.RawSegment `json:"segments"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIModel creates a remote model; model is the provider's model name
// (e.g. whisper-1), not the local whisper size
func NewOpenAIModel(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *OpenAIModel {
	return &OpenAIModel{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name identifies the backend
func (o *OpenAIModel) Name() string {
	return config.BackendOpenAI
}

func (o *OpenAIModel) buildRequest(ctx context.Context, audioPath string, opts Options) (*http.Request, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{"model", o.model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	for _, field := range fields {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// Transcribe uploads the audio and decodes the verbose_json segments
func (o *OpenAIModel) Transcribe(ctx context.Context, audioPath string, opts Options) ([]transcript.Segment, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, ErrModelClosed
	}

	req, err := o.buildRequest(ctx, audioPath, opts)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr openAIErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("openai http %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("openai http %d: %s", resp.StatusCode, tail(string(data), 400))
	}

	var out openAIVerboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode openai response: %w", err)
	}

	segments, err := transcript.FromRaw(out.Segments)
	if err != nil {
		return nil, fmt.Errorf("openai returned malformed segments: %w", err)
	}

	o.logger.Debug("openai transcription finished",
		zap.Int("segments", len(segments)),
		zap.String("detected_language", out.Language),
		zap.Float64("duration", out.Duration))
	return segments, nil
}

// Close releases idle connections and marks the model unusable
func (o *OpenAIModel) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.client.CloseIdleConnections()
	return nil
}
