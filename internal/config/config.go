package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Inject     InjectConfig     `yaml:"inject"`
	LogLevel   string           `yaml:"log_level"`
}

// AudioConfig selects the capture backend and the source format to ask the
// device for. Zero values mean "device native".
type AudioConfig struct {
	Backend    string `yaml:"backend"` // "malgo", "pulse" or "file"
	Device     string `yaml:"device"`  // substring of the device name
	InputFile  string `yaml:"input_file"`
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
	Format     string `yaml:"format"` // "", "s16", "f32"
}

// RecordingConfig bounds a single recording.
type RecordingConfig struct {
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// TranscribeConfig selects the speech-to-text backend.
type TranscribeConfig struct {
	Backend    string       `yaml:"backend"` // "whispercpp" or "openai"
	Model      string       `yaml:"model"`   // catalog name, e.g. "base.en"
	ModelsDir  string       `yaml:"models_dir"`
	WhisperBin string       `yaml:"whisper_bin"`
	Language   string       `yaml:"language"`
	Threads    int          `yaml:"threads"`
	OpenAI     OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for the hosted transcription API.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "hold" or "toggle"
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "type", "paste" or "none"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "micscribe")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory downloaded models are stored in.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".local", "share", "micscribe", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend: "malgo",
		},
		Recording: RecordingConfig{
			MinDuration: 300 * time.Millisecond,
			MaxDuration: 10 * time.Minute,
		},
		Transcribe: TranscribeConfig{
			Backend:    "whispercpp",
			Model:      "base.en",
			ModelsDir:  DefaultModelsDir(),
			WhisperBin: "whisper-cli",
			Language:   "en",
			OpenAI: OpenAIConfig{
				Model: "whisper-1",
			},
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "r"},
			Mode: "hold",
		},
		Inject: InjectConfig{
			Method: "type",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transcribe.ModelsDir = expandTilde(cfg.Transcribe.ModelsDir)
	cfg.Transcribe.WhisperBin = expandTilde(cfg.Transcribe.WhisperBin)
	cfg.Audio.InputFile = expandTilde(cfg.Audio.InputFile)

	return cfg, nil
}

// LoadEnv reads a .env file if one exists and applies environment
// overrides. Environment variables already set take precedence over the file.
func (c *Config) LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Transcribe.OpenAI.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.Transcribe.OpenAI.BaseURL = url
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case "malgo", "pulse":
	case "file":
		if c.Audio.InputFile == "" {
			return fmt.Errorf("audio.input_file must be set when audio.backend is \"file\"")
		}
	default:
		return fmt.Errorf("audio.backend must be \"malgo\", \"pulse\" or \"file\", got %q", c.Audio.Backend)
	}

	switch c.Audio.Format {
	case "", "s16", "f32":
	default:
		return fmt.Errorf("audio.format must be empty, \"s16\" or \"f32\", got %q", c.Audio.Format)
	}

	if c.Recording.MinDuration < 0 {
		return fmt.Errorf("recording.min_duration must be >= 0")
	}
	if c.Recording.MaxDuration < 0 {
		return fmt.Errorf("recording.max_duration must be >= 0")
	}
	if c.Recording.MaxDuration > 0 && c.Recording.MaxDuration < c.Recording.MinDuration {
		return fmt.Errorf("recording.max_duration must not be shorter than recording.min_duration")
	}

	switch c.Transcribe.Backend {
	case "whispercpp":
		if c.Transcribe.Model == "" {
			return fmt.Errorf("transcribe.model must not be empty for whispercpp backend")
		}
		if c.Transcribe.ModelsDir == "" {
			return fmt.Errorf("transcribe.models_dir must not be empty for whispercpp backend")
		}
		if c.Transcribe.WhisperBin == "" {
			return fmt.Errorf("transcribe.whisper_bin must not be empty for whispercpp backend")
		}
	case "openai":
		if c.Transcribe.OpenAI.APIKey == "" {
			return fmt.Errorf("transcribe.openai.api_key (or OPENAI_API_KEY) must be set for openai backend")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"whispercpp\" or \"openai\", got %q", c.Transcribe.Backend)
	}

	if c.Transcribe.Threads < 0 {
		return fmt.Errorf("transcribe.threads must be >= 0")
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	switch c.Inject.Method {
	case "type", "paste", "none":
	default:
		return fmt.Errorf("inject.method must be \"type\", \"paste\" or \"none\", got %q", c.Inject.Method)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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

const defaultHeader = `# micscribe configuration
# Durations use Go syntax, e.g. 300ms or 10m.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" without error if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
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
