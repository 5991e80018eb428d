// Package config loads, validates and persists murmur settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Formatting providers understood by the formatting dispatcher.
const (
	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// DefaultPrompt instructs a formatting provider to restructure dictated text
// without changing its meaning.
const DefaultPrompt = `You are a text formatting assistant. The user dictated the following text via speech-to-text. Format it into well-structured text:
- Add proper punctuation and capitalization
- Break into paragraphs where there is a topic change or natural pause
- Format enumerations as bullet lists (using - prefix)
- Add colons, semicolons, and dashes where appropriate
- Do NOT change the meaning, rephrase, or add new content
- Output ONLY the formatted text, nothing else (no explanations, no quotes)`

// Config holds all application configuration. A session works on a Clone
// taken when the hotkey goes down.
type Config struct {
	Hotkey      HotkeyConfig      `yaml:"hotkey"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcribe  TranscribeConfig  `yaml:"transcribe"`
	Postprocess PostprocessConfig `yaml:"postprocess"`
	Formatting  FormattingConfig  `yaml:"formatting"`
	Sounds      SoundConfig       `yaml:"sounds"`
	Inject      InjectConfig      `yaml:"inject"`
	IPC         IPCConfig         `yaml:"ipc"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	History     HistoryConfig     `yaml:"history"`
	LogLevel    string            `yaml:"log_level"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Combo string `yaml:"combo"` // e.g. "Ctrl+Shift+Space"
	Mode  string `yaml:"mode"`  // "hold" or "toggle"
}

// AudioConfig holds capture and preview cadence settings.
type AudioConfig struct {
	SampleRate      uint32        `yaml:"sample_rate"` // rate the model expects
	Gain            float32       `yaml:"gain"`
	PreviewInterval time.Duration `yaml:"preview_interval"`
	PreviewWindow   time.Duration `yaml:"preview_window"`
	MinPreview      time.Duration `yaml:"min_preview"`
}

// TranscribeConfig holds whisper settings.
type TranscribeConfig struct {
	ModelPath     string `yaml:"model_path"`
	Language      string `yaml:"language"` // "auto" or an ISO code
	Threads       uint   `yaml:"threads"`
	InitialPrompt string `yaml:"initial_prompt"`
}

// PostprocessConfig selects filler-word languages.
type PostprocessConfig struct {
	Languages    []string `yaml:"languages"`
	ExtraFillers []string `yaml:"extra_fillers"`
}

// FormattingConfig selects and configures the formatting provider.
type FormattingConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	OpenAIModel string        `yaml:"openai_model"`
	ClaudeModel string        `yaml:"claude_model"`
	LocalURL    string        `yaml:"local_url"`
	LocalModel  string        `yaml:"local_model"`
	Prompt      string        `yaml:"prompt"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SoundConfig holds cue file paths and volume. Empty paths use built-in tones.
type SoundConfig struct {
	Start  string  `yaml:"start"`
	Stop   string  `yaml:"stop"`
	Volume float32 `yaml:"volume"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "type" or "paste"
}

// IPCConfig configures the display websocket endpoint.
type IPCConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// MetricsConfig toggles the Prometheus /metrics handler.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HistoryConfig locates the transcript history database.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "murmur")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding models and history.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "murmur")
}

// DefaultModelsDir returns the directory where whisper models are expected.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Combo: "Ctrl+Shift+Space",
			Mode:  "hold",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Gain:            4.0,
			PreviewInterval: 2 * time.Second,
			PreviewWindow:   10 * time.Second,
			MinPreview:      time.Second,
		},
		Transcribe: TranscribeConfig{
			ModelPath: filepath.Join(DefaultModelsDir(), "ggml-base.bin"),
			Language:  "auto",
			Threads:   4,
		},
		Postprocess: PostprocessConfig{
			Languages: []string{"en", "ru"},
		},
		Formatting: FormattingConfig{
			Provider:    ProviderNone,
			OpenAIModel: "gpt-4o-mini",
			ClaudeModel: "claude-sonnet-4-20250514",
			LocalURL:    "http://localhost:11434",
			LocalModel:  "llama3.2",
			Prompt:      DefaultPrompt,
			Timeout:     30 * time.Second,
		},
		Sounds: SoundConfig{
			Volume: 0.5,
		},
		Inject: InjectConfig{
			Method: "paste",
		},
		IPC: IPCConfig{
			Listen: "127.0.0.1:7713",
		},
		History: HistoryConfig{
			Path: filepath.Join(DefaultDataDir(), "history.sqlite"),
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
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transcribe.ModelPath = expandTilde(cfg.Transcribe.ModelPath)
	cfg.Sounds.Start = expandTilde(cfg.Sounds.Start)
	cfg.Sounds.Stop = expandTilde(cfg.Sounds.Stop)
	cfg.History.Path = expandTilde(cfg.History.Path)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Hotkey.Combo) == "" {
		return errors.New("hotkey.combo must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	if c.Audio.SampleRate == 0 {
		return errors.New("audio.sample_rate must be > 0")
	}
	if c.Audio.Gain <= 0 {
		return errors.New("audio.gain must be > 0")
	}
	if c.Audio.PreviewInterval <= 0 {
		return errors.New("audio.preview_interval must be > 0")
	}
	if c.Audio.PreviewWindow < c.Audio.MinPreview {
		return errors.New("audio.preview_window must be >= audio.min_preview")
	}

	if c.Transcribe.ModelPath == "" {
		return errors.New("transcribe.model_path must not be empty")
	}

	for _, lang := range c.Postprocess.Languages {
		if lang != "en" && lang != "ru" {
			return fmt.Errorf("postprocess.languages: unsupported language %q (supported: en, ru)", lang)
		}
	}

	switch c.Formatting.Provider {
	case ProviderNone, ProviderLocal, ProviderOpenAI, ProviderClaude:
	default:
		return fmt.Errorf("formatting.provider must be none, local, openai, or claude, got %q", c.Formatting.Provider)
	}
	if c.Formatting.Timeout <= 0 {
		return errors.New("formatting.timeout must be > 0")
	}
	if c.Formatting.Provider == ProviderLocal && c.Formatting.LocalURL == "" {
		return errors.New("formatting.local_url must not be empty for the local provider")
	}

	if c.Sounds.Volume < 0 || c.Sounds.Volume > 1 {
		return fmt.Errorf("sounds.volume must be within 0.0-1.0, got %v", c.Sounds.Volume)
	}

	switch c.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("inject.method must be \"type\" or \"paste\", got %q", c.Inject.Method)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Clone returns a deep copy safe to hand to a session.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Postprocess.Languages = slices.Clone(c.Postprocess.Languages)
	cp.Postprocess.ExtraFillers = slices.Clone(c.Postprocess.ExtraFillers)
	return &cp
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when a config file already exists.
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

	var buf bytes.Buffer
	buf.WriteString("# murmur configuration\n")
	buf.WriteString("# formatting.provider: none | local | openai | claude\n\n")
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level string to a slog level. Unknown values
// fall back to info.
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
