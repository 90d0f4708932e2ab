package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-kiosk/internal/keyword"
)

// Config holds all application configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Queue      QueueConfig      `yaml:"queue"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Keywords   []KeywordConfig  `yaml:"keywords,omitempty"`
	Camera     CameraConfig     `yaml:"camera"`
	Faces      FacesConfig      `yaml:"faces"`
	Report     ReportConfig     `yaml:"report"`
	Transcript TranscriptConfig `yaml:"transcript"`
	LogLevel   string           `yaml:"log_level"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate     uint32  `yaml:"sample_rate"`
	Channels       uint32  `yaml:"channels"`
	SegmentSeconds float64 `yaml:"segment_seconds"`
}

// QueueConfig bounds the segment queue. MaxSegments 0 means unbounded.
type QueueConfig struct {
	MaxSegments int `yaml:"max_segments"`
}

// TranscribeConfig holds speech-to-text backend settings.
type TranscribeConfig struct {
	Backend   string `yaml:"backend"` // "whisper" or "openai"
	Language  string `yaml:"language"`
	ModelPath string `yaml:"model_path"`

	OpenAIModel   string        `yaml:"openai_model"`
	OpenAIBaseURL string        `yaml:"openai_base_url,omitempty"`
	OpenAIAPIKey  string        `yaml:"openai_api_key,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
}

// KeywordConfig is one row of the status keyword table. Rows are matched
// in file order.
type KeywordConfig struct {
	Status string   `yaml:"status"`
	Words  []string `yaml:"words"`
}

// CameraConfig holds still-capture settings.
type CameraConfig struct {
	Device      int           `yaml:"device"`
	Command     []string      `yaml:"command"`
	Output      string        `yaml:"output"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	MaxWidth    int           `yaml:"max_width"`
	MaxHeight   int           `yaml:"max_height"`
}

// FacesConfig holds gallery and matching settings.
type FacesConfig struct {
	KnownDir     string        `yaml:"known_dir"`
	CachePath    string        `yaml:"cache_path"`
	EmbedURL     string        `yaml:"embed_url"`
	Tolerance    float64       `yaml:"tolerance"`
	Metric       string        `yaml:"metric"` // "euclidean" or "cosine"
	VerifySource bool          `yaml:"verify_source"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ReportConfig holds remote collector settings.
type ReportConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TranscriptConfig holds transcript log settings.
type TranscriptConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-kiosk")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory model downloads are written to.
func DefaultModelsDir() string {
	return "models"
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			SegmentSeconds: 3,
		},
		Transcribe: TranscribeConfig{
			Backend:     "whisper",
			Language:    "ja",
			ModelPath:   filepath.Join(DefaultModelsDir(), "ggml-base.bin"),
			OpenAIModel: "whisper-1",
			Timeout:     30 * time.Second,
		},
		Camera: CameraConfig{
			Device: 0,
			Command: []string{
				"ffmpeg", "-loglevel", "error", "-f", "v4l2",
				"-video_size", "640x480", "-i", "/dev/video{device}",
				"-frames:v", "1", "-y", "{output}",
			},
			Output:      "captured.jpg",
			SettleDelay: 3 * time.Second,
			MaxWidth:    640,
			MaxHeight:   480,
		},
		Faces: FacesConfig{
			KnownDir:  "known_faces",
			CachePath: "known_faces.msgpack",
			EmbedURL:  "http://localhost:8000",
			Tolerance: 0.45,
			Metric:    "euclidean",
			Timeout:   30 * time.Second,
		},
		Report: ReportConfig{
			URL:     "http://localhost:5000/receive",
			Timeout: 10 * time.Second,
		},
		Transcript: TranscriptConfig{
			Dir: ".",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in path fields is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transcribe.ModelPath = expandTilde(cfg.Transcribe.ModelPath)
	cfg.Faces.KnownDir = expandTilde(cfg.Faces.KnownDir)
	cfg.Faces.CachePath = expandTilde(cfg.Faces.CachePath)
	cfg.Transcript.Dir = expandTilde(cfg.Transcript.Dir)

	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("KIOSK_COLLECTOR_URL"); v != "" {
		c.Report.URL = v
	}
	if v := os.Getenv("KIOSK_EMBED_URL"); v != "" {
		c.Faces.EmbedURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Transcribe.OpenAIAPIKey = v
	}
}

// KeywordRules returns the configured keyword table, or nil when the
// built-in table should be used.
func (c *Config) KeywordRules() ([]keyword.Rule, error) {
	if len(c.Keywords) == 0 {
		return nil, nil
	}
	rules := make([]keyword.Rule, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		st, err := keyword.ParseStatus(k.Status)
		if err != nil {
			return nil, err
		}
		rules = append(rules, keyword.Rule{Status: st, Keywords: k.Words})
	}
	return rules, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Audio.SegmentSeconds <= 0 {
		return fmt.Errorf("audio.segment_seconds must be > 0")
	}

	if c.Queue.MaxSegments < 0 {
		return fmt.Errorf("queue.max_segments must be >= 0")
	}

	switch c.Transcribe.Backend {
	case "whisper":
		if c.Transcribe.ModelPath == "" {
			return fmt.Errorf("transcribe.model_path must not be empty for whisper backend")
		}
	case "openai":
		if c.Transcribe.OpenAIModel == "" {
			return fmt.Errorf("transcribe.openai_model must not be empty for openai backend")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"whisper\" or \"openai\", got %q", c.Transcribe.Backend)
	}

	if c.Transcribe.Language == "" {
		return fmt.Errorf("transcribe.language must not be empty")
	}

	for i, k := range c.Keywords {
		if _, err := keyword.ParseStatus(k.Status); err != nil {
			return fmt.Errorf("keywords[%d]: %w", i, err)
		}
		if len(k.Words) == 0 {
			return fmt.Errorf("keywords[%d].words must not be empty", i)
		}
	}

	if len(c.Camera.Command) == 0 {
		return fmt.Errorf("camera.command must not be empty")
	}

	if c.Camera.Output == "" {
		return fmt.Errorf("camera.output must not be empty")
	}

	if c.Camera.SettleDelay < 0 {
		return fmt.Errorf("camera.settle_delay must be >= 0")
	}

	if c.Faces.KnownDir == "" {
		return fmt.Errorf("faces.known_dir must not be empty")
	}

	if c.Faces.CachePath == "" {
		return fmt.Errorf("faces.cache_path must not be empty")
	}

	if c.Faces.Tolerance <= 0 {
		return fmt.Errorf("faces.tolerance must be > 0")
	}

	switch c.Faces.Metric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("faces.metric must be \"euclidean\" or \"cosine\", got %q", c.Faces.Metric)
	}

	if err := validateURL("faces.embed_url", c.Faces.EmbedURL); err != nil {
		return err
	}

	if err := validateURL("report.url", c.Report.URL); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}

// Marshal renders the config as YAML with secrets redacted.
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Transcribe.OpenAIAPIKey != "" {
		redacted.Transcribe.OpenAIAPIKey = "<redacted>"
	}
	return yaml.Marshal(&redacted)
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gostt-kiosk configuration
# Generated with default values. Edit and restart the kiosk to apply.
# Secrets may also come from the environment: KIOSK_COLLECTOR_URL,
# KIOSK_EMBED_URL, OPENAI_API_KEY.

`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
