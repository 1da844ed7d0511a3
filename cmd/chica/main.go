// Command chica is the main entry point for the Chica voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chica/internal/app"
	"github.com/MrWong99/chica/internal/config"
	"github.com/MrWong99/chica/internal/observe"
	"github.com/MrWong99/chica/pkg/audio/portaudio"
	"github.com/MrWong99/chica/pkg/provider/llm"
	"github.com/MrWong99/chica/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chica/pkg/provider/llm/ollama"
	"github.com/MrWong99/chica/pkg/provider/llm/openai"
	"github.com/MrWong99/chica/pkg/provider/stt"
	"github.com/MrWong99/chica/pkg/provider/stt/deepgram"
	"github.com/MrWong99/chica/pkg/provider/stt/vosk"
	"github.com/MrWong99/chica/pkg/provider/stt/whisper"
	"github.com/MrWong99/chica/pkg/provider/tts"
	"github.com/MrWong99/chica/pkg/provider/tts/coqui"
	"github.com/MrWong99/chica/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/chica/pkg/provider/tts/kokoro"
	"github.com/MrWong99/chica/pkg/provider/tts/sherpa"
	"github.com/MrWong99/chica/pkg/provider/vad"
	"github.com/MrWong99/chica/pkg/provider/vad/webrtc"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chica: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chica: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(level))

	slog.Info("chica starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "chica",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Assistant.Language)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.Reload)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("ready, say the wake word or press Ctrl+C to shut down", "name", cfg.Assistant.Name)

	exitCode := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("tchau!")
	return exitCode
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages. language is the default
// language for backends that need one.
func registerBuiltinProviders(reg *config.Registry, language string) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollama.Option
		if entry.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollama.WithTimeout(d))
		}
		if d := optDuration(entry.Options, "keep_alive"); d > 0 {
			opts = append(opts, ollama.WithKeepAlive(d))
		}
		return ollama.New(entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anyllm reaches every backend supported by any-llm-go (anthropic,
	// gemini, mistral, groq, llamacpp, ...). options.provider selects it.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "provider")
		if backend == "" {
			return nil, errors.New("anyllm: options.provider is required")
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(optStringOr(entry.Options, "language", language))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath, whisper.WithNativeLanguage(optStringOr(entry.Options, "language", language)))
	})

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return vosk.New(modelPath, vosk.WithLanguage(optStringOr(entry.Options, "language", language)))
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(optStringOr(entry.Options, "language", language))}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("kokoro", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []kokoro.Option
		if entry.Model != "" {
			opts = append(opts, kokoro.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "format"); f != "" {
			opts = append(opts, kokoro.WithFormat(kokoro.Format(f)))
		}
		if entry.APIKey != "" {
			opts = append(opts, kokoro.WithAPIKey(entry.APIKey))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, kokoro.WithTimeout(d))
		}
		return kokoro.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(optStringOr(entry.Options, "language", language))}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("sherpa", func(entry config.ProviderEntry) (tts.Provider, error) {
		model := entry.Model
		if model == "" {
			model = optString(entry.Options, "model")
		}
		return sherpa.New(sherpa.Config{
			Model:      model,
			Voices:     optString(entry.Options, "voices"),
			Tokens:     optString(entry.Options, "tokens"),
			DataDir:    optString(entry.Options, "data_dir"),
			Lexicon:    optString(entry.Options, "lexicon"),
			Lang:       optStringOr(entry.Options, "language", language),
			Speakers:   optIntMap(entry.Options, "speakers"),
			NumThreads: optInt(entry.Options, "num_threads"),
			Provider:   optString(entry.Options, "execution_provider"),
		})
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(entry config.ProviderEntry) (vad.Detector, error) {
		var opts []webrtc.Option
		if _, ok := entry.Options["mode"]; ok {
			opts = append(opts, webrtc.WithMode(optInt(entry.Options, "mode")))
		}
		return webrtc.New(opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry, params config.AudioParams) (config.AudioDevice, error) {
		src, err := portaudio.NewSource(optString(entry.Options, "input_device"), params.SampleRate, params.FrameSize)
		if err != nil {
			return config.AudioDevice{}, err
		}
		sink, err := portaudio.NewSink(optString(entry.Options, "output_device"), params.ChunkSize)
		if err != nil {
			_ = src.Close()
			return config.AudioDevice{}, err
		}
		return config.AudioDevice{Source: src, Sink: sink}, nil
	})

	for _, kind := range []string{"llm", "stt", "tts", "vad", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Fallback providers that fail to construct are skipped with a warning; the
// primary of every chain is mandatory.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	var err error
	if ps.LLM, err = buildChain("llm", pc.LLM, pc.Fallbacks.LLM, reg.CreateLLM); err != nil {
		return nil, err
	}
	if ps.STT, err = buildChain("stt", pc.STT, pc.Fallbacks.STT, reg.CreateSTT); err != nil {
		return nil, err
	}
	if ps.TTS, err = buildChain("tts", pc.TTS, pc.Fallbacks.TTS, reg.CreateTTS); err != nil {
		return nil, err
	}

	if name := pc.VAD.Name; name != "" {
		p, err := reg.CreateVAD(pc.VAD)
		if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		ps.VAD = p
		slog.Info("provider created", "kind", "vad", "name", name)
	}

	seg := cfg.SegmenterConfig()
	dev, err := reg.CreateAudio(pc.Audio, config.AudioParams{
		SampleRate: seg.SampleRate,
		FrameSize:  seg.FrameSize,
		ChunkSize:  cfg.Playback.ChunkSize,
	})
	if err != nil {
		if ps.VAD != nil {
			_ = ps.VAD.Close()
		}
		return nil, fmt.Errorf("create audio provider %q: %w", pc.Audio.Name, err)
	}
	ps.Source, ps.Sink = dev.Source, dev.Sink
	slog.Info("provider created", "kind", "audio", "name", pc.Audio.Name)

	return ps, nil
}

// buildChain creates the primary provider of one kind followed by its
// fallbacks.
func buildChain[T any](kind string, primary config.ProviderEntry, fallbacks []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]app.Named[T], error) {
	p, err := create(primary)
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, primary.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", primary.Name)
	chain := []app.Named[T]{{Name: primary.Name, Provider: p}}

	for _, entry := range fallbacks {
		p, err := create(entry)
		if err != nil {
			slog.Warn("fallback provider skipped", "kind", kind, "name", entry.Name, "err", err)
			continue
		}
		slog.Info("fallback provider created", "kind", kind, "name", entry.Name)
		chain = append(chain, app.Named[T]{Name: entry.Name, Provider: p})
	}
	return chain, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Chica · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  %-12s    : %-19s ║\n", "Name", clip19(cfg.Assistant.Name))
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	fallbacks := len(cfg.Providers.Fallbacks.LLM) + len(cfg.Providers.Fallbacks.STT) + len(cfg.Providers.Fallbacks.TTS)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", fallbacks)
	fmt.Printf("║  Voice           : %-19s ║\n", clip19(cfg.Voice.ID))
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Journal         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Journal         : %-19s ║\n", "(disabled)")
	}
	if cfg.Avatar.Enabled {
		fmt.Printf("║  Avatar          : %-19s ║\n", clip19(cfg.Avatar.Path))
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", clip19(cfg.Server.ListenAddr))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, clip19(value))
}

func clip19(s string) string {
	if r := []rune(s); len(r) > 19 {
		return string(r[:18]) + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func optStringOr(opts map[string]any, key, def string) string {
	if s := optString(opts, key); s != "" {
		return s
	}
	return def
}

// optInt extracts an integer. YAML decodes whole numbers as int, but numeric
// strings are accepted too.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// optDuration parses a duration string such as "30s" or "5m".
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}

// optIntMap extracts a map of integers, e.g. voice name to speaker id.
func optIntMap(opts map[string]any, key string) map[string]int {
	raw, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(raw))
	for k := range raw {
		out[k] = optInt(raw, k)
	}
	return out
}
