// Package orchestrator wires the capture stream to the conversation pipeline.
//
// Frames from an [audio.Source] are routed by [Orchestrator.OnFrame]: while
// the assistant is speaking they feed the interruption monitor, otherwise
// they pass through the energy classifier into the utterance segmenter. A
// finished utterance starts one turn on a worker goroutine (transcribe,
// decide, think, speak). At most one turn runs at a time; utterances that
// complete while a turn is in flight are dropped.
//
// [Orchestrator.Run] drives capture and the housekeeping timers (inactivity
// check and avatar animation) until its context is cancelled.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chica/internal/attention"
	"github.com/MrWong99/chica/internal/avatar"
	"github.com/MrWong99/chica/internal/interrupt"
	"github.com/MrWong99/chica/internal/observe"
	"github.com/MrWong99/chica/internal/playback"
	"github.com/MrWong99/chica/internal/vad"
	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/memory"
	"github.com/MrWong99/chica/pkg/provider/llm"
	"github.com/MrWong99/chica/pkg/provider/stt"
	"github.com/MrWong99/chica/pkg/provider/tts"
)

// Defaults applied by [New] to zero [Config] fields.
const (
	DefaultInactivityCheck = 5 * time.Second
	DefaultAvatarTick      = 16 * time.Millisecond
	DefaultLanguage        = "pt"
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 300
)

// Config holds the per-turn behaviour of the assistant.
type Config struct {
	// Greeting is spoken once when the assistant wakes up.
	Greeting string

	// SystemPrompt is sent with every LLM request.
	SystemPrompt string

	// Language is the hint passed to STT and used for synthesis.
	Language string

	// Temperature and MaxTokens are passed to the LLM.
	Temperature float64
	MaxTokens   int

	// Voice is the synthesis voice.
	Voice tts.VoiceProfile

	// Filter rejects utterances that are too short or too quiet.
	Filter vad.Filter

	// RecordDir, when set, keeps every accepted utterance and every spoken
	// reply as a WAV file in that directory.
	RecordDir string

	// InactivityCheck is the period of the sleep check.
	InactivityCheck time.Duration

	// AvatarTick is the period of the avatar animation.
	AvatarTick time.Duration
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Voice.Language == "" {
		c.Voice.Language = c.Language
	}
	if c.InactivityCheck <= 0 {
		c.InactivityCheck = DefaultInactivityCheck
	}
	if c.AvatarTick <= 0 {
		c.AvatarTick = DefaultAvatarTick
	}
}

// Names labels providers in metrics and logs.
type Names struct {
	STT string
	LLM string
	TTS string
}

// Deps are the collaborators of an [Orchestrator]. Monitor, Avatar and
// Journal are optional.
type Deps struct {
	Source     audio.Source
	Classifier *vad.Classifier
	Segmenter  *vad.Segmenter
	Attention  *attention.Machine
	STT        stt.Provider
	LLM        llm.Provider
	TTS        tts.Provider
	Player     *playback.Coordinator
	Monitor    *interrupt.Monitor
	Avatar     avatar.Avatar
	Journal    memory.SessionStore
	Names      Names
}

func (d Deps) validate() error {
	var errs []error
	if d.Classifier == nil {
		errs = append(errs, errors.New("classifier is required"))
	}
	if d.Segmenter == nil {
		errs = append(errs, errors.New("segmenter is required"))
	}
	if d.Attention == nil {
		errs = append(errs, errors.New("attention machine is required"))
	}
	if d.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if d.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if d.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if d.Player == nil {
		errs = append(errs, errors.New("playback coordinator is required"))
	}
	return errors.Join(errs...)
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSessionID sets the journal session. Defaults to a random ID.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// WithClock replaces the wall clock used by the housekeeping loops.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the capture path and the conversation pipeline.
type Orchestrator struct {
	deps      Deps
	metrics   *observe.Metrics
	sessionID string
	now       func() time.Time

	cfgMu sync.RWMutex
	cfg   Config

	// Capture path state, touched only by the goroutine calling OnFrame.
	wasSpeaking bool

	busy    atomic.Bool
	dropped atomic.Int64
	seq     atomic.Uint64
	turns   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Orchestrator. It returns an error when a required
// collaborator is missing.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if deps.Avatar == nil {
		deps.Avatar = avatar.Nop{}
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessionID == "" {
		o.sessionID = memory.NewSessionID()
	}
	return o, nil
}

// SessionID returns the journal session of this process.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Dropped returns how many utterances were discarded because a turn was
// already in flight.
func (o *Orchestrator) Dropped() int64 { return o.dropped.Load() }

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// Reload replaces the per-turn configuration. A turn already in flight keeps
// the configuration it started with. The housekeeping periods are fixed once
// Run has started.
func (o *Orchestrator) Reload(cfg Config) {
	cfg.applyDefaults()
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
}

// OnFrame routes one captured frame. It never blocks on I/O and is meant to
// be called from the capture callback.
func (o *Orchestrator) OnFrame(f audio.Frame) {
	if o.deps.Player.Speaking() {
		if !o.wasSpeaking {
			o.wasSpeaking = true
			o.deps.Segmenter.Reset()
		}
		if o.deps.Monitor != nil {
			o.deps.Monitor.Feed(f)
		}
		return
	}
	o.wasSpeaking = false

	d := o.deps.Classifier.Classify(f.Samples)
	before := o.deps.Segmenter.State()
	u, done := o.deps.Segmenter.Push(f.Samples, d.IsSpeech)
	if before == vad.StateIdle && o.deps.Segmenter.State() == vad.StateCollecting &&
		o.deps.Attention.State() == attention.Awake {
		o.deps.Attention.Touch()
	}
	if !done {
		return
	}

	if !o.busy.CompareAndSwap(false, true) {
		o.dropped.Add(1)
		o.metrics.RecordUtterance(o.ctx, "dropped")
		slog.Debug("orchestrator: utterance dropped, turn in flight", "duration", u.Duration())
		return
	}
	o.turns.Add(1)
	go func() {
		defer o.turns.Done()
		defer o.busy.Store(false)
		o.turn(o.ctx, u)
	}()
}

// Run starts capture and the housekeeping loops and blocks until ctx is
// cancelled or capture fails. In-flight turns are cancelled and awaited
// before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.deps.Source == nil {
		return errors.New("orchestrator: no audio source")
	}
	cfg := o.Config()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.deps.Source.Start(ctx, o.OnFrame); err != nil {
			return fmt.Errorf("orchestrator: capture: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		o.every(ctx, cfg.InactivityCheck, func() { o.checkInactivity(ctx) })
		return nil
	})
	g.Go(func() error {
		o.every(ctx, cfg.AvatarTick, func() { o.deps.Avatar.Tick(o.now()) })
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		o.cancel()
		return nil
	})

	err := g.Wait()
	o.turns.Wait()
	return err
}

// Close cancels any in-flight turn and waits for it to finish.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.turns.Wait()
	return nil
}

func (o *Orchestrator) every(ctx context.Context, d time.Duration, fn func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

func (o *Orchestrator) checkInactivity(ctx context.Context) {
	busy := o.busy.Load() || o.deps.Player.Speaking()
	if o.deps.Attention.CheckInactivity(busy) {
		o.metrics.RecordAttention(ctx, "slept")
		slog.Info("orchestrator: inactive, going back to sleep")
	}
}
