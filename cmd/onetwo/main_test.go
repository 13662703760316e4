package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command in-process and captures its output
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolateEnv keeps tests away from any CONFIG_PATH or ONETWO_* set by the caller
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ONETWO_WHISPER_MODELS_DIR", filepath.Join(dir, "models"))
	t.Setenv("ONETWO_CACHE_PATH", filepath.Join(dir, "cache.db"))
	t.Setenv("ONETWO_HEALTH_FILE", filepath.Join(dir, "health.json"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const interviewPlain = "INTERVIEW\n=========\n\n00:00:00,000 --> 00:00:02,500\nBonjour\n\n00:00:02,500 --> 00:00:05,000\nSalut\n\n"
const interviewSRT = "1\n00:00:00,000 --> 00:00:02,500\nBonjour\n\n2\n00:00:02,500 --> 00:00:05,000\nSalut\n\n"

func TestVersionCommand(t *testing.T) {
	t.Run("should print version information", func(t *testing.T) {
		// Act
		out, _, err := runCLI(t, "version")

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "OneTwo Transcript")
		assert.Contains(t, out, "Version: dev")
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("should write, show and validate a sample configuration", func(t *testing.T) {
		// Arrange
		isolateEnv(t)
		target := filepath.Join(t.TempDir(), "conf", "onetwo.toml")

		// Act
		out, _, err := runCLI(t, "config", "init", "--path", target)
		require.NoError(t, err)
		_, _, again := runCLI(t, "config", "init", "--path", target)
		shown, _, showErr := runCLI(t, "--config", target, "config", "show")
		valid, _, validErr := runCLI(t, "--config", target, "config", "validate")

		// Assert
		assert.Contains(t, out, "Wrote sample configuration")
		assert.FileExists(t, target)
		require.Error(t, again)
		assert.Contains(t, again.Error(), "already exists")
		require.NoError(t, showErr)
		assert.Contains(t, shown, "model = 'small'")
		assert.Contains(t, shown, "language = 'fr'")
		require.NoError(t, validErr)
		assert.Contains(t, valid, "Configuration valid")
	})

	t.Run("should overwrite when asked", func(t *testing.T) {
		// Arrange
		target := filepath.Join(t.TempDir(), "onetwo.toml")
		writeFile(t, target, "garbage")

		// Act
		_, _, err := runCLI(t, "config", "init", "--path", target, "--overwrite")

		// Assert
		require.NoError(t, err)
		assert.Contains(t, readFile(t, target), "[whisper]")
	})

	t.Run("should report a missing config file", func(t *testing.T) {
		// Arrange
		isolateEnv(t)

		// Act
		_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load config")
	})
}

func TestFormatCommand(t *testing.T) {
	segments := `[{"start":0,"end":2.5,"text":" Bonjour "},{"start":2.5,"end":5,"text":"Salut"}]`

	t.Run("should write both renderings named after the input", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		input := filepath.Join(dir, "interview.json")
		writeFile(t, input, segments)
		outDir := filepath.Join(dir, "out")

		// Act
		out, _, err := runCLI(t, "format", input, "--out", outDir)

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "INTERVIEW.txt")
		assert.Equal(t, interviewPlain, readFile(t, filepath.Join(outDir, "INTERVIEW.txt")))
		assert.Equal(t, interviewSRT, readFile(t, filepath.Join(outDir, "INTERVIEW.srt")))
	})

	t.Run("should print a single rendering with an explicit title", func(t *testing.T) {
		// Arrange
		input := filepath.Join(t.TempDir(), "segments.json")
		writeFile(t, input, segments)

		// Act
		out, _, err := runCLI(t, "format", input, "--title", "INTERVIEW", "--print", "txt")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, interviewPlain, out)
	})

	t.Run("should reject segments ending before they start", func(t *testing.T) {
		// Arrange
		input := filepath.Join(t.TempDir(), "bad.json")
		writeFile(t, input, `[{"start":3,"end":2,"text":"x"}]`)

		// Act
		_, _, err := runCLI(t, "format", input, "--print", "srt")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid segment 0")
	})

	t.Run("should reject unknown print formats", func(t *testing.T) {
		// Arrange
		input := filepath.Join(t.TempDir(), "segments.json")
		writeFile(t, input, segments)

		// Act
		_, _, err := runCLI(t, "format", input, "--print", "pdf")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown --print format")
	})
}

func TestModelsCommands(t *testing.T) {
	t.Run("should list the catalogue and mark installed models", func(t *testing.T) {
		// Arrange
		dir := isolateEnv(t)
		writeFile(t, filepath.Join(dir, "models", "ggml-tiny.bin"), "model")

		// Act
		out, _, err := runCLI(t, "models", "list")

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "MODEL")
		assert.Contains(t, out, "large-v3-turbo")
		assert.Contains(t, out, "small *")
		assert.Contains(t, out, "ggml-tiny.bin")
		assert.Contains(t, out, "75 MB")
	})

	t.Run("should not download a model that is already present", func(t *testing.T) {
		// Arrange
		dir := isolateEnv(t)
		writeFile(t, filepath.Join(dir, "models", "ggml-base.bin"), "model")

		// Act
		out, _, err := runCLI(t, "models", "pull", "base")

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "Model base ready")
	})

	t.Run("should resolve the model name case-insensitively", func(t *testing.T) {
		// Arrange
		dir := isolateEnv(t)
		writeFile(t, filepath.Join(dir, "models", "ggml-base.bin"), "model")

		// Act
		out, _, err := runCLI(t, "models", "pull", "BASE")

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "Model base ready")
		assert.Contains(t, out, "ggml-base.bin")
	})

	t.Run("should refuse unknown model names", func(t *testing.T) {
		// Arrange
		isolateEnv(t)

		// Act
		_, _, err := runCLI(t, "models", "pull", "gigantic")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown model "gigantic"`)
	})
}

func TestTranscribeCommand(t *testing.T) {
	t.Run("should transcribe through the openai backend and reuse the cache", func(t *testing.T) {
		// Arrange
		dir := isolateEnv(t)
		var requests atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"language":"fr","segments":[{"start":0,"end":2.5,"text":" Bonjour "},{"start":2.5,"end":5,"text":"Salut"}]}`)
		}))
		defer server.Close()

		t.Setenv("ONETWO_WHISPER_BACKEND", "openai")
		t.Setenv("ONETWO_OPENAI_BASE_URL", server.URL)
		t.Setenv("OPENAI_API_KEY", "sk-test")

		audio := filepath.Join(dir, "interview.mp3")
		writeFile(t, audio, "not really audio")
		outDir := filepath.Join(dir, "out")
		segmentsPath := filepath.Join(dir, "segments.json")

		// Act
		first, _, err := runCLI(t, "transcribe", audio, "--out", outDir, "--segments", segmentsPath)
		require.NoError(t, err)
		second, _, err := runCLI(t, "transcribe", audio, "--out", outDir)
		require.NoError(t, err)

		// Assert
		assert.Equal(t, int64(1), requests.Load())
		assert.Contains(t, first, "INTERVIEW: 2 segments")
		assert.Contains(t, second, "cached")
		assert.Equal(t, interviewPlain, readFile(t, filepath.Join(outDir, "INTERVIEW.txt")))
		assert.Equal(t, interviewSRT, readFile(t, filepath.Join(outDir, "INTERVIEW.srt")))

		var written []map[string]any
		require.NoError(t, json.Unmarshal([]byte(readFile(t, segmentsPath)), &written))
		assert.Len(t, written, 2)
	})

	t.Run("should fail on invalid configuration", func(t *testing.T) {
		// Arrange
		dir := isolateEnv(t)
		t.Setenv("ONETWO_WHISPER_BACKEND", "telepathy")
		audio := filepath.Join(dir, "a.wav")
		writeFile(t, audio, "x")

		// Act
		_, _, err := runCLI(t, "transcribe", audio)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestHealthCommand(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	status := func(ts time.Time, healthy any) string {
		body := map[string]any{"health_check_timestamp": ts.Format(time.RFC3339)}
		if healthy != nil {
			body["healthy"] = healthy
		}
		data, _ := json.Marshal(body)
		return string(data)
	}

	tests := []struct {
		name     string
		content  *string
		healthy  bool
		contains string
	}{
		{name: "missing file", content: nil, healthy: false, contains: "not found"},
		{name: "fresh and healthy", content: ptr(status(now.Add(-10*time.Second), true)), healthy: true, contains: "HEALTHY"},
		{name: "stale", content: ptr(status(now.Add(-5*time.Minute), true)), healthy: false, contains: "stale"},
		{name: "reported unhealthy", content: ptr(status(now, false)), healthy: false, contains: "reported unhealthy"},
		{name: "missing healthy field", content: ptr(status(now, nil)), healthy: false, contains: "missing healthy"},
		{name: "not JSON", content: ptr("{"), healthy: false, contains: "parse"},
		{name: "missing timestamp", content: ptr(`{"healthy":true}`), healthy: false, contains: "missing timestamp"},
	}

	for _, tt := range tests {
		t.Run("should handle "+tt.name, func(t *testing.T) {
			// Arrange
			path := filepath.Join(t.TempDir(), "health.json")
			if tt.content != nil {
				writeFile(t, path, *tt.content)
			}

			// Act
			healthy, message := checkHealthWithFile(path, 90*time.Second, now)

			// Assert
			assert.Equal(t, tt.healthy, healthy)
			assert.Contains(t, message, tt.contains)
		})
	}

	t.Run("should exit non-zero through the CLI when unhealthy", func(t *testing.T) {
		// Arrange
		isolateEnv(t)

		// Act
		out, _, err := runCLI(t, "health")

		// Assert
		assert.ErrorIs(t, err, errUnhealthy)
		assert.Contains(t, out, "UNHEALTHY")
	})

	t.Run("should succeed through the CLI with a fresh file", func(t *testing.T) {
		// Arrange
		isolateEnv(t)
		path := filepath.Join(t.TempDir(), "h.json")
		writeFile(t, path, status(time.Now(), true))

		// Act
		out, _, err := runCLI(t, "health", "--file", path)

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out, "HEALTHY: Application is functioning normally")
	})
}

func ptr(s string) *string { return &s }
