package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfiguration_Defaults(t *testing.T) {
	t.Run("should mirror the original transcription options", func(t *testing.T) {
		// Arrange
		cfg := NewConfiguration()

		// Assert
		assert.Equal(t, BackendWhisper, cfg.GetWhisperBackend())
		assert.Equal(t, "small", cfg.GetWhisperModel())
		assert.Equal(t, "fr", cfg.GetWhisperLanguage())
		assert.False(t, cfg.GetConditionOnPreviousText())
		assert.Equal(t, DeviceAuto, cfg.GetWhisperDevice())
	})

	t.Run("should provide usable server defaults", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.Equal(t, ":8501", cfg.GetServerAddr())
		assert.Equal(t, int64(200<<20), cfg.GetMaxUploadBytes())
		assert.Equal(t, []string{"mp3", "wav", "m4a"}, cfg.GetAllowedExtensions())
		assert.Equal(t, 30*time.Minute, cfg.GetResultTTL())
		assert.NotEmpty(t, cfg.GetUploadDir())
	})

	t.Run("should derive the ggml model path from the model name", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.Equal(t, filepath.Join("./models", "ggml-small.bin"), cfg.GetWhisperModelPath())
	})

	t.Run("should keep cache entries for thirty days", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.True(t, cfg.GetCacheEnabled())
		assert.Equal(t, 30*24*time.Hour, cfg.GetCacheMaxAge())
		assert.Equal(t, "./logs/transcriptions.log", cfg.GetLogFilePath())
		assert.Equal(t, 1, cfg.GetTranscriptionConcurrency())
	})

	t.Run("should default debug mode to false", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.False(t, cfg.GetDebugMode())
		cfg.SetDebugMode(true)
		assert.True(t, cfg.GetDebugMode())
	})

	t.Run("should validate", func(t *testing.T) {
		assert.NoError(t, NewConfiguration().Validate())
	})
}

func TestNewConfigurationFromFile(t *testing.T) {
	t.Run("should load values from a YAML file", func(t *testing.T) {
		// Arrange
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")
		configContent := `server:
  addr: "127.0.0.1:9000"
  max_upload_mb: 50
  allowed_extensions: [".MP3", "ogg"]
whisper:
  backend: whispercpp
  model: base
  model_path: "/opt/models/custom.bin"
  language: en
  condition_on_previous_text: true
debug_mode: true`
		require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

		// Act
		cfg, err := NewConfigurationFromFile(configFile)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
		assert.Equal(t, int64(50<<20), cfg.GetMaxUploadBytes())
		assert.Equal(t, []string{"mp3", "ogg"}, cfg.GetAllowedExtensions())
		assert.Equal(t, BackendWhisperCpp, cfg.GetWhisperBackend())
		assert.Equal(t, "base", cfg.GetWhisperModel())
		assert.Equal(t, "/opt/models/custom.bin", cfg.GetWhisperModelPath())
		assert.Equal(t, "en", cfg.GetWhisperLanguage())
		assert.True(t, cfg.GetConditionOnPreviousText())
		assert.True(t, cfg.GetDebugMode())
	})

	t.Run("should load values from a TOML file", func(t *testing.T) {
		// Arrange
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.toml")
		configContent := `[server]
result_ttl = "5m"

[whisper]
timeout = "90s"
`
		require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

		// Act
		cfg, err := NewConfigurationFromFile(configFile)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, cfg.GetResultTTL())
		assert.Equal(t, 90*time.Second, cfg.GetTranscriptionTimeout())
		assert.Equal(t, "small", cfg.GetWhisperModel(), "unset keys keep their defaults")
	})

	t.Run("should return error for non-existent config file", func(t *testing.T) {
		// Act
		cfg, err := NewConfigurationFromFile(filepath.Join(t.TempDir(), "missing.yaml"))

		// Assert
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("should return error for invalid config file format", func(t *testing.T) {
		// Arrange
		configFile := filepath.Join(t.TempDir(), "invalid.yaml")
		invalidContent := `whisper:
  model: "small"
invalid_yaml: [unclosed_bracket`
		require.NoError(t, os.WriteFile(configFile, []byte(invalidContent), 0644))

		// Act
		cfg, err := NewConfigurationFromFile(configFile)

		// Assert
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestNewConfigurationFromEnv(t *testing.T) {
	t.Run("should read prefixed environment variables", func(t *testing.T) {
		// Arrange
		t.Setenv("ONETWO_WHISPER_MODEL", "medium")
		t.Setenv("ONETWO_SERVER_ADDR", ":9999")
		t.Setenv("ONETWO_CACHE_ENABLED", "false")

		// Act
		cfg, err := NewConfigurationFromEnv()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "medium", cfg.GetWhisperModel())
		assert.Equal(t, ":9999", cfg.GetServerAddr())
		assert.False(t, cfg.GetCacheEnabled())
	})

	t.Run("should accept the conventional OpenAI key variable", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg, err := NewConfigurationFromEnv()

		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.GetOpenAIAPIKey())
	})

	t.Run("should let the environment override a config file", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("whisper:\n  language: en\n"), 0644))
		t.Setenv("ONETWO_WHISPER_LANGUAGE", "de")

		cfg, err := NewConfigurationFromFile(configFile)

		require.NoError(t, err)
		assert.Equal(t, "de", cfg.GetWhisperLanguage())
	})
}

func TestLoad(t *testing.T) {
	t.Run("should prefer CONFIG_PATH when no explicit path is given", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("whisper:\n  model: tiny\n"), 0644))
		t.Setenv("CONFIG_PATH", configFile)

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "tiny", cfg.GetWhisperModel())
	})

	t.Run("should fall back to the environment", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "")

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "small", cfg.GetWhisperModel())
	})
}

func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name          string
		settings      map[string]any
		expectedError string
	}{
		{name: "unknown backend", settings: map[string]any{"whisper.backend": "vosk"}, expectedError: "unknown whisper.backend"},
		{name: "openai without key", settings: map[string]any{"whisper.backend": "openai", "openai.api_key": ""}, expectedError: "openai.api_key"},
		{name: "empty model", settings: map[string]any{"whisper.model": " "}, expectedError: "whisper.model is required"},
		{name: "unknown device", settings: map[string]any{"whisper.device": "tpu"}, expectedError: "unknown whisper.device"},
		{name: "zero upload limit", settings: map[string]any{"server.max_upload_mb": 0}, expectedError: "max_upload_mb"},
		{name: "no extensions", settings: map[string]any{"server.allowed_extensions": []string{}}, expectedError: "allowed_extensions"},
		{name: "cache without path", settings: map[string]any{"cache.path": ""}, expectedError: "cache.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := NewConfiguration()
			for key, value := range tt.settings {
				cfg.viper.Set(key, value)
			}

			// Act
			err := cfg.Validate()

			// Assert
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}

	t.Run("should accept openai with a key", func(t *testing.T) {
		cfg := NewConfiguration()
		cfg.viper.Set("whisper.backend", "OpenAI")
		cfg.viper.Set("openai.api_key", "sk-test")

		assert.NoError(t, cfg.Validate())
	})
}
