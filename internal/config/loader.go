package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chica/pkg/provider/tts"
)

// DefaultName is the assistant name used when assistant.name is empty.
const DefaultName = "Chica"

// Defaults applied by [ApplyDefaults].
const (
	DefaultLanguage     = "pt"
	DefaultGreeting     = "Oi! Eu sou a {name}. Como posso ajudar?"
	DefaultSystemPrompt = "Você é {name}, uma assistente de voz simpática. " +
		"Responda sempre em português do Brasil, em no máximo duas frases curtas, " +
		"sem listas, sem emojis e sem markdown."
	DefaultVoice = "pf_dora"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"ollama", "openai", "anyllm"},
	"stt":   {"whisper", "whisper-native", "vosk", "deepgram"},
	"tts":   {"kokoro", "coqui", "sherpa", "elevenlabs"},
	"vad":   {"webrtc"},
	"audio": {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
//
// A ".env" file in the working directory, if present, is loaded into the
// process environment first, and ${VAR} references in the YAML are expanded
// from the environment before decoding.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued persona and server fields. Pipeline tuning
// fields are left at zero; the builders in this package substitute the
// package defaults for them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	a := &cfg.Assistant
	if a.Name == "" {
		a.Name = DefaultName
	}
	if a.Language == "" {
		a.Language = DefaultLanguage
	}
	if a.Greeting == "" {
		a.Greeting = DefaultGreeting
	}
	if a.SystemPrompt == "" {
		a.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Voice.ID == "" {
		cfg.Voice.ID = DefaultVoice
	}
	if cfg.Avatar.Enabled && cfg.Avatar.Path == "" {
		cfg.Avatar.Path = "/avatar"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for _, kind := range []struct {
		name  string
		entry ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
		{"audio", cfg.Providers.Audio},
	} {
		if kind.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind.name))
		}
	}
	for kind, entries := range map[string][]ProviderEntry{
		"llm": cfg.Providers.Fallbacks.LLM,
		"stt": cfg.Providers.Fallbacks.STT,
		"tts": cfg.Providers.Fallbacks.TTS,
	} {
		for i, e := range entries {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.fallbacks.%s[%d].name is required", kind, i))
			}
			validateProviderName(kind, e.Name)
		}
	}

	// Assistant
	a := cfg.Assistant
	if a.HistoryMessages < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_messages %d must not be negative", a.HistoryMessages))
	}
	if a.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("assistant.inactivity_timeout %v must not be negative", a.InactivityTimeout))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens %d must not be negative", a.MaxTokens))
	}

	// Grammar
	if g := cfg.Grammar.FuzzyThreshold; g < 0 || g > 1 {
		errs = append(errs, fmt.Errorf("grammar.fuzzy_threshold %.2f is out of range [0, 1]", g))
	}

	// Listen
	l := cfg.Listen
	if l.SampleRate < 0 || l.FrameSize < 0 || l.MinSpeechFrames < 0 {
		errs = append(errs, errors.New("listen.sample_rate, listen.frame_size and listen.min_speech_frames must not be negative"))
	}
	if l.Smoothing < 0 || l.Smoothing >= 1 {
		if l.Smoothing != 0 {
			errs = append(errs, fmt.Errorf("listen.smoothing %.2f is out of range [0, 1)", l.Smoothing))
		}
	}
	if l.MaxDuration != 0 && l.SilenceDuration >= l.MaxDuration {
		errs = append(errs, fmt.Errorf("listen.silence_duration %v must be shorter than listen.max_duration %v", l.SilenceDuration, l.MaxDuration))
	}

	// Playback
	if cfg.Playback.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("playback.chunk_size %d must not be negative", cfg.Playback.ChunkSize))
	}
	if cfg.Playback.InterruptionWindow < 0 || cfg.Playback.PollInterval < 0 {
		errs = append(errs, errors.New("playback.interruption_window and playback.poll_interval must not be negative"))
	}

	// Voice
	if _, _, err := tts.ParseBlend(cfg.Voice.ID); err != nil {
		errs = append(errs, fmt.Errorf("voice.id: %w", err))
	}
	if s := cfg.Voice.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed %.2f is out of range [0.5, 2.0]", s))
	}
	if cfg.Voice.Parallelism < 0 || cfg.Voice.Cache.Size < 0 || cfg.Voice.Cache.MaxText < 0 {
		errs = append(errs, errors.New("voice.parallelism, voice.cache.size and voice.cache.max_text must not be negative"))
	}

	// Avatar
	if cfg.Avatar.Enabled && !strings.HasPrefix(cfg.Avatar.Path, "/") {
		errs = append(errs, fmt.Errorf("avatar.path %q must start with /", cfg.Avatar.Path))
	}
	if cfg.Avatar.Enabled && slices.Contains(reservedPaths, cfg.Avatar.Path) {
		errs = append(errs, fmt.Errorf("avatar.path %q is reserved", cfg.Avatar.Path))
	}
	if cfg.Avatar.Enabled && cfg.Server.ListenAddr == "" {
		slog.Warn("avatar.enabled is set but server.listen_addr is empty; the avatar will not be served")
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		slog.Debug("memory.postgres_dsn is empty; conversations will not be journaled")
	}

	return errors.Join(errs...)
}

// reservedPaths are served by the application itself.
var reservedPaths = []string{"/metrics", "/healthz", "/readyz", "/journal"}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
