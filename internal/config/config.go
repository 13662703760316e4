package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transcription backends understood by the transcriber package
const (
	BackendWhisper    = "whisper"
	BackendWhisperCpp = "whispercpp"
	BackendOpenAI     = "openai"
)

// Device selection values for local backends
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

const envPrefix = "ONETWO"

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8501")
	v.SetDefault("server.max_upload_mb", 200)
	v.SetDefault("server.upload_dir", os.TempDir())
	v.SetDefault("server.result_ttl", 30*time.Minute)
	v.SetDefault("server.allowed_extensions", []string{"mp3", "wav", "m4a"})

	v.SetDefault("whisper.backend", BackendWhisper)
	v.SetDefault("whisper.model", "small")
	v.SetDefault("whisper.language", "fr")
	v.SetDefault("whisper.condition_on_previous_text", false)
	v.SetDefault("whisper.device", DeviceAuto)
	v.SetDefault("whisper.binary", "whisper")
	v.SetDefault("whisper.cpp_binary", "whisper-cli")
	v.SetDefault("whisper.models_dir", "./models")
	v.SetDefault("whisper.model_path", "")
	v.SetDefault("whisper.timeout", 30*time.Minute)
	v.SetDefault("whisper.concurrency", 1)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "whisper-1")

	v.SetDefault("ffmpeg.path", "ffmpeg")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "./data/transcripts.db")
	v.SetDefault("cache.max_age", 30*24*time.Hour)

	v.SetDefault("log.file_path", "./logs/transcriptions.log")

	v.SetDefault("health.file", filepath.Join(os.TempDir(), "onetwo-health.json"))
	v.SetDefault("health.interval", 30*time.Second)

	v.SetDefault("debug_mode", false)
	v.SetDefault("benchmark_mode", false)

	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional variable is honoured alongside the prefixed one
	_ = v.BindEnv("openai.api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	return &Configuration{viper: newViper()}
}

// NewConfigurationFromFile creates a Configuration instance from a YAML or TOML
// config file; environment variables still override file values
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configFile)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from
// ONETWO_* environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := newViper()
	bindEnv(v)
	return &Configuration{viper: v}, nil
}

// Load picks the explicit path, then CONFIG_PATH, then the environment
func Load(configFile string) (*Configuration, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_PATH")
	}
	if configFile != "" {
		return NewConfigurationFromFile(configFile)
	}
	return NewConfigurationFromEnv()
}

// GetServerAddr returns the HTTP listen address
func (c *Configuration) GetServerAddr() string {
	return c.viper.GetString("server.addr")
}

// GetMaxUploadBytes returns the upload size limit in bytes
func (c *Configuration) GetMaxUploadBytes() int64 {
	return c.viper.GetInt64("server.max_upload_mb") << 20
}

// GetUploadDir returns the directory uploads are staged in
func (c *Configuration) GetUploadDir() string {
	return c.viper.GetString("server.upload_dir")
}

// GetResultTTL returns how long finished transcripts stay downloadable
func (c *Configuration) GetResultTTL() time.Duration {
	return c.viper.GetDuration("server.result_ttl")
}

// GetAllowedExtensions returns accepted upload extensions, lower-case without dot
func (c *Configuration) GetAllowedExtensions() []string {
	raw := c.viper.GetStringSlice("server.allowed_extensions")
	exts := make([]string, 0, len(raw))
	for _, ext := range raw {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// GetWhisperBackend returns the configured transcription backend
func (c *Configuration) GetWhisperBackend() string {
	return strings.ToLower(strings.TrimSpace(c.viper.GetString("whisper.backend")))
}

// GetWhisperModel returns the model name (e.g. "small")
func (c *Configuration) GetWhisperModel() string {
	return strings.TrimSpace(c.viper.GetString("whisper.model"))
}

// GetWhisperLanguage returns the language hint passed to the engine
func (c *Configuration) GetWhisperLanguage() string {
	return strings.TrimSpace(c.viper.GetString("whisper.language"))
}

// GetConditionOnPreviousText reports whether decoding is primed with prior text
func (c *Configuration) GetConditionOnPreviousText() bool {
	return c.viper.GetBool("whisper.condition_on_previous_text")
}

// GetWhisperDevice returns auto, cpu or cuda
func (c *Configuration) GetWhisperDevice() string {
	return strings.ToLower(strings.TrimSpace(c.viper.GetString("whisper.device")))
}

// GetWhisperBinary returns the openai-whisper CLI executable
func (c *Configuration) GetWhisperBinary() string {
	return c.viper.GetString("whisper.binary")
}

// GetWhisperCppBinary returns the whisper.cpp CLI executable
func (c *Configuration) GetWhisperCppBinary() string {
	return c.viper.GetString("whisper.cpp_binary")
}

// GetModelsDir returns the directory ggml models are stored in
func (c *Configuration) GetModelsDir() string {
	return c.viper.GetString("whisper.models_dir")
}

// GetWhisperModelPath returns the ggml model file, derived from the model name
// unless set explicitly
func (c *Configuration) GetWhisperModelPath() string {
	if path := strings.TrimSpace(c.viper.GetString("whisper.model_path")); path != "" {
		return path
	}
	return filepath.Join(c.GetModelsDir(), fmt.Sprintf("ggml-%s.bin", c.GetWhisperModel()))
}

// GetTranscriptionTimeout bounds a single transcription job
func (c *Configuration) GetTranscriptionTimeout() time.Duration {
	return c.viper.GetDuration("whisper.timeout")
}

// GetTranscriptionConcurrency caps how many jobs run against the model at once
func (c *Configuration) GetTranscriptionConcurrency() int {
	if n := c.viper.GetInt("whisper.concurrency"); n > 0 {
		return n
	}
	return 1
}

// GetOpenAIBaseURL returns the OpenAI-compatible API root
func (c *Configuration) GetOpenAIBaseURL() string {
	return strings.TrimRight(c.viper.GetString("openai.base_url"), "/")
}

// GetOpenAIAPIKey returns the API key for the openai backend
func (c *Configuration) GetOpenAIAPIKey() string {
	return c.viper.GetString("openai.api_key")
}

// GetOpenAIModel returns the remote model name
func (c *Configuration) GetOpenAIModel() string {
	return c.viper.GetString("openai.model")
}

// GetFFmpegPath returns the ffmpeg executable
func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("ffmpeg.path")
}

// GetCacheEnabled reports whether transcripts are cached on disk
func (c *Configuration) GetCacheEnabled() bool {
	return c.viper.GetBool("cache.enabled")
}

// GetCachePath returns the SQLite cache location
func (c *Configuration) GetCachePath() string {
	return c.viper.GetString("cache.path")
}

// GetCacheMaxAge returns how long an unused cache entry is kept; zero keeps everything
func (c *Configuration) GetCacheMaxAge() time.Duration {
	return c.viper.GetDuration("cache.max_age")
}

// GetLogFilePath returns the JSON-lines journal of completed transcriptions
func (c *Configuration) GetLogFilePath() string {
	return c.viper.GetString("log.file_path")
}

// GetHealthFile returns where the health status JSON is written
func (c *Configuration) GetHealthFile() string {
	return c.viper.GetString("health.file")
}

// GetHealthInterval returns how often the health file is refreshed
func (c *Configuration) GetHealthInterval() time.Duration {
	return c.viper.GetDuration("health.interval")
}

// GetDebugMode returns whether debug logging is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("debug_mode")
}

// SetDebugMode sets the debug mode configuration
func (c *Configuration) SetDebugMode(enabled bool) {
	c.viper.Set("debug_mode", enabled)
}

// GetBenchmarkMode returns whether per-job performance lines are logged
func (c *Configuration) GetBenchmarkMode() bool {
	return c.viper.GetBool("benchmark_mode")
}

// Validate reports the first setting that cannot be used
func (c *Configuration) Validate() error {
	switch c.GetWhisperBackend() {
	case BackendWhisper, BackendWhisperCpp:
		if c.GetWhisperModel() == "" {
			return fmt.Errorf("whisper.model is required for the %s backend", c.GetWhisperBackend())
		}
	case BackendOpenAI:
		if c.GetOpenAIAPIKey() == "" {
			return fmt.Errorf("openai.api_key (or OPENAI_API_KEY) is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown whisper.backend %q (expected %s, %s or %s)",
			c.viper.GetString("whisper.backend"), BackendWhisper, BackendWhisperCpp, BackendOpenAI)
	}

	switch c.GetWhisperDevice() {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
	default:
		return fmt.Errorf("unknown whisper.device %q (expected auto, cpu or cuda)", c.GetWhisperDevice())
	}

	if c.viper.GetInt64("server.max_upload_mb") <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if len(c.GetAllowedExtensions()) == 0 {
		return fmt.Errorf("server.allowed_extensions must list at least one extension")
	}
	if c.GetResultTTL() <= 0 {
		return fmt.Errorf("server.result_ttl must be positive")
	}
	if c.GetCacheEnabled() && strings.TrimSpace(c.GetCachePath()) == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}
	return nil
}
