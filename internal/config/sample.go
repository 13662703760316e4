package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Settings is a serialisable snapshot of the configuration
type Settings struct {
	DebugMode     bool            `toml:"debug_mode"`
	BenchmarkMode bool            `toml:"benchmark_mode"`
	Server        ServerSettings  `toml:"server"`
	Whisper       WhisperSettings `toml:"whisper"`
	OpenAI        OpenAISettings  `toml:"openai"`
	FFmpeg        FFmpegSettings  `toml:"ffmpeg"`
	Cache         CacheSettings   `toml:"cache"`
	Log           LogSettings     `toml:"log"`
	Health        HealthSettings  `toml:"health"`
}

type ServerSettings struct {
	Addr              string   `toml:"addr"`
	MaxUploadMB       int64    `toml:"max_upload_mb"`
	UploadDir         string   `toml:"upload_dir"`
	ResultTTL         string   `toml:"result_ttl"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

type WhisperSettings struct {
	Backend                 string `toml:"backend"`
	Model                   string `toml:"model"`
	Language                string `toml:"language"`
	ConditionOnPreviousText bool   `toml:"condition_on_previous_text"`
	Device                  string `toml:"device"`
	Binary                  string `toml:"binary"`
	CppBinary               string `toml:"cpp_binary"`
	ModelsDir               string `toml:"models_dir"`
	Timeout                 string `toml:"timeout"`
	Concurrency             int    `toml:"concurrency"`
}

type OpenAISettings struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type FFmpegSettings struct {
	Path string `toml:"path"`
}

type CacheSettings struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	MaxAge  string `toml:"max_age"`
}

type LogSettings struct {
	FilePath string `toml:"file_path"`
}

type HealthSettings struct {
	File     string `toml:"file"`
	Interval string `toml:"interval"`
}

// Settings returns the effective values. The API key is never included.
func (c *Configuration) Settings() Settings {
	return Settings{
		DebugMode:     c.GetDebugMode(),
		BenchmarkMode: c.GetBenchmarkMode(),
		Server: ServerSettings{
			Addr:              c.GetServerAddr(),
			MaxUploadMB:       c.GetMaxUploadBytes() >> 20,
			UploadDir:         c.GetUploadDir(),
			ResultTTL:         c.GetResultTTL().String(),
			AllowedExtensions: c.GetAllowedExtensions(),
		},
		Whisper: WhisperSettings{
			Backend:                 c.GetWhisperBackend(),
			Model:                   c.GetWhisperModel(),
			Language:                c.GetWhisperLanguage(),
			ConditionOnPreviousText: c.GetConditionOnPreviousText(),
			Device:                  c.GetWhisperDevice(),
			Binary:                  c.GetWhisperBinary(),
			CppBinary:               c.GetWhisperCppBinary(),
			ModelsDir:               c.GetModelsDir(),
			Timeout:                 c.GetTranscriptionTimeout().String(),
			Concurrency:             c.GetTranscriptionConcurrency(),
		},
		OpenAI: OpenAISettings{
			BaseURL: c.GetOpenAIBaseURL(),
			Model:   c.GetOpenAIModel(),
		},
		FFmpeg: FFmpegSettings{Path: c.GetFFmpegPath()},
		Cache:  CacheSettings{Enabled: c.GetCacheEnabled(), Path: c.GetCachePath(), MaxAge: c.GetCacheMaxAge().String()},
		Log:    LogSettings{FilePath: c.GetLogFilePath()},
		Health: HealthSettings{File: c.GetHealthFile(), Interval: c.GetHealthInterval().String()},
	}
}

// MarshalTOML renders the effective settings as a TOML document
func (c *Configuration) MarshalTOML() ([]byte, error) {
	data, err := toml.Marshal(c.Settings())
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}

// CreateSample writes the default configuration to path
func CreateSample(path string) error {
	data, err := NewConfiguration().MarshalTOML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sample config %s: %w", path, err)
	}
	return nil
}
