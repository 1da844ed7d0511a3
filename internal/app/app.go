// Package app wires all Chica subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes capture and the observability endpoint, Reload
// applies hot-reloadable config changes, and Shutdown tears everything down
// in order.
//
// For testing, inject mock implementations via functional options
// (WithJournal, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chica/internal/attention"
	"github.com/MrWong99/chica/internal/avatar"
	"github.com/MrWong99/chica/internal/config"
	"github.com/MrWong99/chica/internal/health"
	"github.com/MrWong99/chica/internal/interrupt"
	"github.com/MrWong99/chica/internal/observe"
	"github.com/MrWong99/chica/internal/orchestrator"
	"github.com/MrWong99/chica/internal/playback"
	"github.com/MrWong99/chica/internal/resilience"
	"github.com/MrWong99/chica/internal/session"
	"github.com/MrWong99/chica/internal/vad"
	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/memory"
	"github.com/MrWong99/chica/pkg/memory/postgres"
	"github.com/MrWong99/chica/pkg/provider/llm"
	"github.com/MrWong99/chica/pkg/provider/stt"
	"github.com/MrWong99/chica/pkg/provider/tts"
	providervad "github.com/MrWong99/chica/pkg/provider/vad"
)

// Named pairs a provider with the name it was registered under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the constructed backends. Populated by main.go via the
// config registry. The first entry of each chain is the primary, the rest
// are fallbacks in order. VAD is optional.
type Providers struct {
	LLM    []Named[llm.Provider]
	STT    []Named[stt.Provider]
	TTS    []Named[tts.Provider]
	VAD    providervad.Detector
	Source audio.Source
	Sink   audio.Sink
}

func (p *Providers) validate() error {
	var errs []error
	if len(p.LLM) == 0 {
		errs = append(errs, errors.New("an LLM provider is required"))
	}
	if len(p.STT) == 0 {
		errs = append(errs, errors.New("an STT provider is required"))
	}
	if len(p.TTS) == 0 {
		errs = append(errs, errors.New("a TTS provider is required"))
	}
	if p.Source == nil {
		errs = append(errs, errors.New("an audio source is required"))
	}
	if p.Sink == nil {
		errs = append(errs, errors.New("an audio sink is required"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes and orchestrates the Chica voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or created from config.
	journal  memory.SessionStore
	guard    *session.JournalGuard
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	promHTTP http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	llm       *resilience.LLMFallback
	stt       *resilience.STTFallback
	tts       *resilience.TTSFallback
	ttsCache  *tts.Cache
	attention *attention.Machine
	monitor   *interrupt.Monitor
	player    *playback.Coordinator
	avatar    *avatar.Broadcaster
	orch      *orchestrator.Orchestrator
	health    *health.Handler
	handler   http.Handler

	mu       sync.Mutex
	server   *http.Server
	running  atomic.Bool
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects a conversation journal instead of connecting to the
// configured PostgreSQL database.
func WithJournal(s memory.SessionStore) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the process logger so that
// log level changes can be applied on reload.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithMetricsHandler replaces the Prometheus handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.promHTTP == nil {
		a.promHTTP = promhttp.Handler()
	}

	// Device and detector handles are released even if a later step fails.
	sinkClose := providers.Sink.Close
	if t, ok := providers.Sink.(interface{ Terminate() error }); ok {
		sinkClose = t.Terminate
	}
	a.closers = append(a.closers, providers.Source.Close, sinkClose)
	if providers.VAD != nil {
		a.closers = append(a.closers, providers.VAD.Close)
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Provider chains ───────────────────────────────────────────────
	a.initProviders()

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. HTTP endpoints ────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal connects the PostgreSQL journal or uses the injected store,
// and wraps it in a guard so journal failures never break a turn. Without a
// DSN the journal is disabled.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal == nil {
		dsn := a.cfg.Memory.PostgresDSN
		if dsn == "" {
			slog.Info("journal disabled, no memory.postgres_dsn configured")
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.journal = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	a.guard = session.NewJournalGuard(a.journal)
	return nil
}

// initProviders wraps every provider chain in a fallback group and stacks
// the sentence synthesizer and clip cache on top of the TTS chain.
func (a *App) initProviders() {
	p := a.providers

	a.llm = resilience.NewLLMFallback(p.LLM[0].Provider, p.LLM[0].Name, a.fallbackConfig("llm"))
	for _, f := range p.LLM[1:] {
		a.llm.AddFallback(f.Name, f.Provider)
	}
	a.stt = resilience.NewSTTFallback(p.STT[0].Provider, p.STT[0].Name, a.fallbackConfig("stt"))
	for _, f := range p.STT[1:] {
		a.stt.AddFallback(f.Name, f.Provider)
	}
	a.tts = resilience.NewTTSFallback(p.TTS[0].Provider, p.TTS[0].Name, a.fallbackConfig("tts"))
	for _, f := range p.TTS[1:] {
		a.tts.AddFallback(f.Name, f.Provider)
	}
}

func (a *App) fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		OnError: func(provider string, err error) {
			slog.Warn("provider failed, trying next", "kind", kind, "provider", provider, "err", err)
			a.metrics.RecordProviderError(context.Background(), provider, kind)
		},
	}
}

// synthesizer returns the TTS chain handed to the orchestrator.
func (a *App) synthesizer() tts.Provider {
	vc := a.cfg.Voice
	var next tts.Provider = a.tts
	if !vc.Cache.Disabled {
		a.ttsCache = tts.NewCache(a.tts, tts.WithCacheSize(vc.Cache.Size), tts.WithCacheMaxText(vc.Cache.MaxText))
		next = a.ttsCache
	}
	return tts.NewSentenceSynthesizer(next, tts.WithCrossfade(vc.Crossfade), tts.WithParallelism(vc.Parallelism))
}

// initPipeline builds the capture, attention, playback and turn machinery.
func (a *App) initPipeline() error {
	cfg := a.cfg

	var classifierOpts []vad.ClassifierOption
	if a.providers.VAD != nil {
		classifierOpts = append(classifierOpts, vad.WithDetector(a.providers.VAD, cfg.SegmenterConfig().SampleRate))
	}
	classifier := vad.NewClassifier(cfg.ClassifierConfig(), classifierOpts...)
	segmenter := vad.NewSegmenter(cfg.SegmenterConfig())

	a.attention = attention.New(attention.Config{
		Wake:              cfg.WakeGrammar(),
		Stop:              cfg.StopGrammar(),
		InactivityTimeout: cfg.Assistant.InactivityTimeout,
		HistoryLimit:      cfg.Assistant.HistoryMessages,
	})

	var av avatar.Avatar = avatar.Nop{}
	if cfg.Avatar.Enabled {
		a.avatar = avatar.NewBroadcaster(avatar.NewAnimator(time.Now()), slog.Default())
		av = a.avatar
	}

	playerOpts := []playback.Option{
		playback.WithIndicator(av),
		playback.WithChunkSize(cfg.Playback.ChunkSize),
		playback.WithSpeakingHook(func(speaking bool) {
			slog.Debug("speaking", "active", speaking)
		}),
	}
	if cfg.Playback.IsInterruptible() {
		a.monitor = interrupt.New(a.stt, a.attention.IsStop,
			interrupt.WithWindow(cfg.Playback.InterruptionWindow),
			interrupt.WithPollInterval(cfg.Playback.PollInterval),
			interrupt.WithLanguage(cfg.Assistant.Language),
			interrupt.WithDetectHook(func(text string) {
				slog.Info("stop command heard while speaking", "text", text)
			}),
		)
		playerOpts = append(playerOpts, playback.WithMonitor(a.monitor))
	}
	a.player = playback.New(a.providers.Sink, playerOpts...)

	orchCfg, err := orchestratorConfig(cfg)
	if err != nil {
		return err
	}
	var journal memory.SessionStore
	if a.guard != nil {
		journal = a.guard
	}
	a.orch, err = orchestrator.New(orchCfg, orchestrator.Deps{
		Source:     a.providers.Source,
		Classifier: classifier,
		Segmenter:  segmenter,
		Attention:  a.attention,
		STT:        a.stt,
		LLM:        a.llm,
		TTS:        a.synthesizer(),
		Player:     a.player,
		Monitor:    a.monitor,
		Avatar:     av,
		Journal:    journal,
		Names: orchestrator.Names{
			STT: a.providers.STT[0].Name,
			LLM: a.providers.LLM[0].Name,
			TTS: a.providers.TTS[0].Name,
		},
	}, orchestrator.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.closers = append([]func() error{a.orch.Close}, a.closers...)
	return nil
}

// orchestratorConfig derives the per-turn settings from cfg.
func orchestratorConfig(cfg *config.Config) (orchestrator.Config, error) {
	voice, err := cfg.VoiceProfile()
	if err != nil {
		return orchestrator.Config{}, fmt.Errorf("voice: %w", err)
	}
	return orchestrator.Config{
		Greeting:     cfg.Greeting(),
		SystemPrompt: cfg.SystemPrompt(),
		Language:     cfg.Assistant.Language,
		Temperature:  cfg.Assistant.Temperature,
		MaxTokens:    cfg.Assistant.MaxTokens,
		Voice:        voice,
		Filter:       cfg.Filter(),
		RecordDir:    cfg.Playback.RecordDir,
	}, nil
}

// initHTTP assembles the metrics, health, journal and avatar endpoints.
func (a *App) initHTTP() {
	checkers := []health.Checker{
		{
			Name:     "pipeline",
			Critical: true,
			Check: func(context.Context) error {
				if !a.running.Load() {
					return errors.New("not running")
				}
				return nil
			},
		},
		{Name: "llm", Check: breakerCheck(a.llm.Group().States)},
		{Name: "stt", Check: breakerCheck(a.stt.Group().States)},
		{Name: "tts", Check: breakerCheck(a.tts.Group().States)},
	}
	if a.guard != nil {
		checkers = append(checkers, health.Checker{Name: "journal", Check: a.guard.Check})
	}
	a.health = health.New(checkers)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.promHTTP)
	a.health.Register(mux)
	if a.avatar != nil {
		mux.Handle("GET "+a.cfg.Avatar.Path, a.avatar)
	}
	if a.guard != nil {
		mux.HandleFunc("GET /journal", a.journalHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
}

// breakerCheck fails when every provider of a chain has an open breaker.
func breakerCheck(states func() map[string]resilience.State) func(context.Context) error {
	return func(context.Context) error {
		all := states()
		for _, s := range all {
			if s != resilience.StateOpen {
				return nil
			}
		}
		return fmt.Errorf("all %d circuit breakers open", len(all))
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving /metrics, /healthz, /readyz and,
// when enabled, the journal and the avatar stream.
func (a *App) Handler() http.Handler { return a.handler }

// SessionID returns the journal session of this process.
func (a *App) SessionID() string { return a.orch.SessionID() }

// Attention returns the attention state machine.
func (a *App) Attention() *attention.Machine { return a.attention }

// Orchestrator returns the turn orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// TTSCache returns the phrase cache, or nil when voice.cache.disabled is set.
func (a *App) TTSCache() *tts.Cache { return a.ttsCache }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture and, when server.listen_addr is set, the HTTP endpoint.
// It blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.mu.Lock()
		a.server = srv
		a.mu.Unlock()

		g.Go(func() error {
			slog.Info("http endpoint listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		a.running.Store(true)
		defer a.running.Store(false)
		slog.Info("listening", "session", a.orch.SessionID(), "name", a.cfg.Assistant.Name)
		return a.orch.Run(ctx)
	})

	err := g.Wait()
	a.mu.Lock()
	a.server = nil
	a.mu.Unlock()
	return err
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. Changes
// that need a restart are logged and otherwise ignored.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GrammarChanged {
		a.attention.SetGrammar(new.WakeGrammar(), new.StopGrammar())
		slog.Info("wake and stop words reloaded")
	}
	if d.InactivityChanged {
		a.attention.SetInactivityTimeout(d.NewInactivity)
		slog.Info("inactivity timeout changed", "timeout", d.NewInactivity)
	}
	if d.PersonaChanged || d.VoiceChanged {
		orchCfg, err := orchestratorConfig(new)
		if err != nil {
			slog.Warn("config reload rejected", "err", err)
			return
		}
		a.orch.Reload(orchCfg)
		if d.VoiceChanged && a.ttsCache != nil {
			a.ttsCache.Purge()
		}
		slog.Info("assistant settings reloaded", "persona", d.PersonaChanged, "voice", d.VoiceChanged)
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if a.ttsCache != nil {
			hits, misses := a.ttsCache.Stats()
			slog.Info("tts cache", "hits", hits, "misses", misses)
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
