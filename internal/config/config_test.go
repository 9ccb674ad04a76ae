package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Audio.Backend != "malgo" {
		t.Errorf("Audio.Backend = %q, want %q", cfg.Audio.Backend, "malgo")
	}
	if cfg.Audio.SampleRate != 0 || cfg.Audio.Channels != 0 || cfg.Audio.Format != "" {
		t.Errorf("Audio = %+v, want device native format", cfg.Audio)
	}
	if cfg.Recording.MinDuration != 300*time.Millisecond {
		t.Errorf("Recording.MinDuration = %s, want 300ms", cfg.Recording.MinDuration)
	}
	if cfg.Transcribe.Backend != "whispercpp" || cfg.Transcribe.Model != "base.en" {
		t.Errorf("Transcribe = %+v, want whispercpp base.en", cfg.Transcribe)
	}
	if cfg.Transcribe.ModelsDir == "" {
		t.Error("Transcribe.ModelsDir should not be empty")
	}
	if cfg.Hotkey.Mode != "hold" {
		t.Errorf("Hotkey.Mode = %q, want %q", cfg.Hotkey.Mode, "hold")
	}
	if len(cfg.Hotkey.Keys) != 3 {
		t.Errorf("Hotkey.Keys length = %d, want 3", len(cfg.Hotkey.Keys))
	}
	if cfg.Inject.Method != "type" {
		t.Errorf("Inject.Method = %q, want %q", cfg.Inject.Method, "type")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
audio:
  backend: pulse
  device: USB
  sample_rate: 44100
  channels: 2
  format: s16
recording:
  min_duration: 500ms
  max_duration: 2m
transcribe:
  backend: whispercpp
  model: tiny.en
  models_dir: /tmp/models
  whisper_bin: /usr/local/bin/whisper-cli
  threads: 4
hotkey:
  keys: ["alt", "d"]
  mode: toggle
inject:
  method: paste
log_level: debug
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Audio.Backend != "pulse" || cfg.Audio.Device != "USB" {
		t.Errorf("Audio backend/device = %q/%q, want pulse/USB", cfg.Audio.Backend, cfg.Audio.Device)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Channels != 2 || cfg.Audio.Format != "s16" {
		t.Errorf("Audio format = %+v", cfg.Audio)
	}
	if cfg.Recording.MinDuration != 500*time.Millisecond || cfg.Recording.MaxDuration != 2*time.Minute {
		t.Errorf("Recording = %+v, want 500ms/2m", cfg.Recording)
	}
	if cfg.Transcribe.Model != "tiny.en" || cfg.Transcribe.ModelsDir != "/tmp/models" || cfg.Transcribe.Threads != 4 {
		t.Errorf("Transcribe = %+v", cfg.Transcribe)
	}
	if cfg.Transcribe.Language != "en" {
		t.Errorf("Transcribe.Language = %q, want default %q", cfg.Transcribe.Language, "en")
	}
	if cfg.Hotkey.Mode != "toggle" {
		t.Errorf("Hotkey.Mode = %q, want %q", cfg.Hotkey.Mode, "toggle")
	}
	if len(cfg.Hotkey.Keys) != 2 || cfg.Hotkey.Keys[0] != "alt" || cfg.Hotkey.Keys[1] != "d" {
		t.Errorf("Hotkey.Keys = %v, want [alt d]", cfg.Hotkey.Keys)
	}
	if cfg.Inject.Method != "paste" {
		t.Errorf("Inject.Method = %q, want %q", cfg.Inject.Method, "paste")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	cfg, err := Load(writeConfig(t, `
audio:
  input_file: ~/clips/hello.wav
transcribe:
  models_dir: ~/models
  whisper_bin: ~/bin/whisper-cli
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"models_dir", cfg.Transcribe.ModelsDir, filepath.Join(home, "models")},
		{"whisper_bin", cfg.Transcribe.WhisperBin, filepath.Join(home, "bin/whisper-cli")},
		{"input_file", cfg.Audio.InputFile, filepath.Join(home, "clips/hello.wav")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "hotkey: [unterminated")); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid audio backend",
			modify:  func(c *Config) { c.Audio.Backend = "alsa" },
			wantErr: true,
		},
		{
			name:    "file backend without input file",
			modify:  func(c *Config) { c.Audio.Backend = "file" },
			wantErr: true,
		},
		{
			name: "file backend with input file",
			modify: func(c *Config) {
				c.Audio.Backend = "file"
				c.Audio.InputFile = "/tmp/a.wav"
			},
			wantErr: false,
		},
		{
			name:    "invalid audio format",
			modify:  func(c *Config) { c.Audio.Format = "s24" },
			wantErr: true,
		},
		{
			name:    "negative min duration",
			modify:  func(c *Config) { c.Recording.MinDuration = -time.Second },
			wantErr: true,
		},
		{
			name:    "max shorter than min",
			modify:  func(c *Config) { c.Recording.MaxDuration = 100 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "unbounded max duration",
			modify:  func(c *Config) { c.Recording.MaxDuration = 0 },
			wantErr: false,
		},
		{
			name:    "invalid hotkey mode",
			modify:  func(c *Config) { c.Hotkey.Mode = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid inject method",
			modify:  func(c *Config) { c.Inject.Method = "invalid" },
			wantErr: true,
		},
		{
			name:    "inject none",
			modify:  func(c *Config) { c.Inject.Method = "none" },
			wantErr: false,
		},
		{
			name:    "empty hotkey keys",
			modify:  func(c *Config) { c.Hotkey.Keys = nil },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
		{
			name:    "unknown transcribe backend",
			modify:  func(c *Config) { c.Transcribe.Backend = "vosk" },
			wantErr: true,
		},
		{
			name:    "whispercpp without model",
			modify:  func(c *Config) { c.Transcribe.Model = "" },
			wantErr: true,
		},
		{
			name:    "whispercpp without binary",
			modify:  func(c *Config) { c.Transcribe.WhisperBin = "" },
			wantErr: true,
		},
		{
			name:    "negative threads",
			modify:  func(c *Config) { c.Transcribe.Threads = -1 },
			wantErr: true,
		},
		{
			name:    "openai without key",
			modify:  func(c *Config) { c.Transcribe.Backend = "openai" },
			wantErr: true,
		},
		{
			name: "openai with key",
			modify: func(c *Config) {
				c.Transcribe.Backend = "openai"
				c.Transcribe.OpenAI.APIKey = "sk-test"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("OPENAI_API_KEY=sk-from-file\nOPENAI_BASE_URL=http://localhost:9000/v1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_BASE_URL")

	cfg := Default()
	if err := cfg.LoadEnv(envPath); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Transcribe.OpenAI.APIKey != "sk-from-file" {
		t.Errorf("APIKey = %q, want value from .env", cfg.Transcribe.OpenAI.APIKey)
	}
	if cfg.Transcribe.OpenAI.BaseURL != "http://localhost:9000/v1" {
		t.Errorf("BaseURL = %q, want value from .env", cfg.Transcribe.OpenAI.BaseURL)
	}
}

func TestLoadEnvPrefersEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("OPENAI_API_KEY=sk-from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg := Default()
	cfg.Transcribe.OpenAI.APIKey = "sk-from-yaml"
	if err := cfg.LoadEnv(envPath); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Transcribe.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want environment value", cfg.Transcribe.OpenAI.APIKey)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := Default()
	cfg.Transcribe.OpenAI.APIKey = "sk-from-yaml"
	if err := cfg.LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Transcribe.OpenAI.APIKey != "sk-from-yaml" {
		t.Errorf("APIKey = %q, want YAML value kept", cfg.Transcribe.OpenAI.APIKey)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "micscribe", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# micscribe") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Hotkey.Mode != "hold" {
		t.Errorf("written config Hotkey.Mode = %q, want %q", cfg.Hotkey.Mode, "hold")
	}
	if cfg.Recording.MinDuration != 300*time.Millisecond {
		t.Errorf("written config Recording.MinDuration = %s, want 300ms", cfg.Recording.MinDuration)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "micscribe")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}
