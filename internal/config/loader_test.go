package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/chica/internal/config"
)

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("CHICA_TEST_OPENAI_KEY", "sk-from-env")
	cfg := mustLoad(t, minimalYAML+`
  fallbacks:
    llm:
      - name: openai
        api_key: ${CHICA_TEST_OPENAI_KEY}
`)
	if got := cfg.Providers.Fallbacks.LLM[0].APIKey; got != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", got, "sk-from-env")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")
	t.Setenv("CHICA_POSTGRES_DSN", "")

	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load(example.yaml): %v", err)
	}
	if got := cfg.Providers.Fallbacks.LLM[0].APIKey; got != "sk-example" {
		t.Errorf("fallback api_key = %q, want sk-example", got)
	}
	if cfg.Memory.PostgresDSN != "" {
		t.Errorf("postgres_dsn = %q, want empty when the variable is unset", cfg.Memory.PostgresDSN)
	}
	voice, err := cfg.VoiceProfile()
	if err != nil {
		t.Fatalf("VoiceProfile: %v", err)
	}
	if len(voice.Blend) != 2 {
		t.Errorf("voice blend = %+v, want two components", voice.Blend)
	}
	if cfg.Avatar.Path != "/avatar" {
		t.Errorf("avatar.path = %q, want the default /avatar", cfg.Avatar.Path)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Assistant.Name != config.DefaultName {
		t.Errorf("name: got %q, want %q", cfg.Assistant.Name, config.DefaultName)
	}
	if cfg.Assistant.Language != "pt" {
		t.Errorf("language: got %q, want pt", cfg.Assistant.Language)
	}
	if cfg.Voice.ID == "" {
		t.Error("voice.id not defaulted")
	}
	if cfg.Avatar.Path != "" {
		t.Error("avatar.path should stay empty while the avatar is disabled")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"invalid log level", "server: {log_level: verbose}", "log_level"},
		{"temperature out of range", "assistant: {temperature: 3}", "assistant.temperature"},
		{"negative history", "assistant: {history_messages: -1}", "assistant.history_messages"},
		{"fuzzy threshold out of range", "grammar: {fuzzy_threshold: 1.5}", "grammar.fuzzy_threshold"},
		{"silence longer than max", "listen: {silence_duration: 5s, max_duration: 2s}", "listen.silence_duration"},
		{"smoothing out of range", "listen: {smoothing: 1}", "listen.smoothing"},
		{"negative chunk size", "playback: {chunk_size: -1}", "playback.chunk_size"},
		{"invalid voice", `voice: {id: "pf_dora 80% mais ???"}`, "voice.id"},
		{"voice speed out of range", "voice: {speed: 3}", "voice.speed"},
		{"avatar path", "avatar: {enabled: true, path: avatar}", "avatar.path"},
		{"reserved avatar path", "avatar: {enabled: true, path: /journal}", "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(minimalYAML + tt.extra + "\n"))
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_FallbackRequiresName(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)
	cfg.Providers.Fallbacks.STT = []config.ProviderEntry{{Model: "base"}}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "providers.fallbacks.stt[0].name") {
		t.Errorf("expected fallback name error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)
	cfg.Server.LogLevel = "loud"
	cfg.Voice.Speed = 9
	cfg.Playback.ChunkSize = -5

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		t.Fatalf("expected a joined error, got %T", err)
	}
	if n := len(joined.Unwrap()); n != 3 {
		t.Errorf("got %d errors, want 3: %v", n, err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts", "vad", "audio"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
