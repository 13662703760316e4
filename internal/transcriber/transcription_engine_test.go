package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"onetwotranscript/internal/cache"
	"onetwotranscript/internal/transcript"
)

// MockModel is a test double for Model
type MockModel struct {
	segments []transcript.Segment
	err      error
	delay    time.Duration
	calls    atomic.Int32
	active   atomic.Int32
	peak     atomic.Int32
	lastOpts Options
	closed   bool
	mu       sync.Mutex
}

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Transcribe(ctx context.Context, _ string, opts Options) ([]transcript.Segment, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.lastOpts = opts
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.segments, m.err
}

func (m *MockModel) Close() error {
	m.closed = true
	return nil
}

var engineSegments = []transcript.Segment{
	{Start: 0, End: 2.5, Text: "Bonjour"},
	{Start: 2.5, End: 5, Text: "Merci"},
}

var frenchSmall = Options{Model: "small", Language: "fr"}

func writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interview.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func openCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTranscriptionEngine_Transcribe(t *testing.T) {
	t.Run("should run the model with the fixed options", func(t *testing.T) {
		// Arrange
		model := &MockModel{segments: engineSegments}
		engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))

		// Act
		result, err := engine.Transcribe(context.Background(), writeAudio(t, "audio"))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, engineSegments, result.Segments)
		assert.False(t, result.Cached)
		assert.Equal(t, "mock", result.Backend)
		assert.Equal(t, "small", result.Model)
		assert.Equal(t, "fr", result.Language)
		assert.Equal(t, int64(5), result.AudioBytes)
		assert.Equal(t, 5.0, result.AudioSeconds())
		assert.Equal(t, frenchSmall, model.lastOpts)

		metrics := engine.GetPerformanceMetrics()
		assert.Equal(t, int64(1), metrics.TotalTranscriptions)
		assert.Equal(t, int64(2), metrics.TotalSegments)
	})

	t.Run("should reject empty audio before calling the model", func(t *testing.T) {
		model := &MockModel{}
		engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))

		_, err := engine.Transcribe(context.Background(), writeAudio(t, ""))

		assert.ErrorIs(t, err, ErrEmptyAudio)
		assert.Zero(t, model.calls.Load())
	})

	t.Run("should reject a missing file", func(t *testing.T) {
		engine := NewTranscriptionEngine(&MockModel{}, frenchSmall, zaptest.NewLogger(t))

		_, err := engine.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"))

		assert.ErrorContains(t, err, "audio file unavailable")
	})

	t.Run("should wrap model failures and count them", func(t *testing.T) {
		engine := NewTranscriptionEngine(&MockModel{err: errors.New("boom")}, frenchSmall, zaptest.NewLogger(t))

		_, err := engine.Transcribe(context.Background(), writeAudio(t, "audio"))

		assert.ErrorContains(t, err, "boom")
		assert.Equal(t, int64(1), engine.GetPerformanceMetrics().FailedTranscriptions)
	})

	t.Run("should reject invalid segments from the model", func(t *testing.T) {
		model := &MockModel{segments: []transcript.Segment{{Start: 3, End: 1, Text: "x"}}}
		engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))

		_, err := engine.Transcribe(context.Background(), writeAudio(t, "audio"))

		assert.ErrorIs(t, err, transcript.ErrInvalidSegment)
	})

	t.Run("should time out slow jobs", func(t *testing.T) {
		engine := NewTranscriptionEngine(&MockModel{delay: time.Second}, frenchSmall, zaptest.NewLogger(t))
		engine.SetTimeout(20 * time.Millisecond)

		_, err := engine.Transcribe(context.Background(), writeAudio(t, "audio"))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("should serve repeated audio from the cache", func(t *testing.T) {
		// Arrange
		model := &MockModel{segments: engineSegments}
		engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))
		engine.SetCache(openCache(t))
		audio := writeAudio(t, "same audio")

		// Act
		first, err := engine.Transcribe(context.Background(), audio)
		require.NoError(t, err)
		second, err := engine.Transcribe(context.Background(), audio)
		require.NoError(t, err)

		// Assert
		assert.False(t, first.Cached)
		assert.True(t, second.Cached)
		assert.Equal(t, first.Segments, second.Segments)
		assert.Equal(t, int32(1), model.calls.Load())
		assert.Equal(t, int64(1), engine.GetPerformanceMetrics().CacheHits)
	})

	t.Run("should not share cache entries across options", func(t *testing.T) {
		store := openCache(t)
		audio := writeAudio(t, "same audio")
		french := &MockModel{segments: engineSegments}
		english := &MockModel{segments: engineSegments}

		e1 := NewTranscriptionEngine(french, frenchSmall, zaptest.NewLogger(t))
		e1.SetCache(store)
		e2 := NewTranscriptionEngine(english, Options{Model: "small", Language: "en"}, zaptest.NewLogger(t))
		e2.SetCache(store)

		_, err := e1.Transcribe(context.Background(), audio)
		require.NoError(t, err)
		result, err := e2.Transcribe(context.Background(), audio)
		require.NoError(t, err)

		assert.False(t, result.Cached)
		assert.Equal(t, int32(1), english.calls.Load())
	})

	t.Run("should limit concurrent jobs", func(t *testing.T) {
		model := &MockModel{segments: engineSegments, delay: 20 * time.Millisecond}
		engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))
		engine.SetConcurrency(2)
		audio := writeAudio(t, "audio")

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := engine.Transcribe(context.Background(), audio)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(6), model.calls.Load())
		assert.LessOrEqual(t, model.peak.Load(), int32(2))
	})
}

func TestTranscriptionEngine_Close(t *testing.T) {
	model := &MockModel{}
	engine := NewTranscriptionEngine(model, frenchSmall, zaptest.NewLogger(t))

	require.NoError(t, engine.Close())

	assert.True(t, model.closed)
}
