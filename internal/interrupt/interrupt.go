// Package interrupt detects spoken stop commands while the assistant talks.
//
// A [Monitor] is fed every captured frame. Frames are buffered only while the
// monitor is active, that is between [Monitor.Start] and [Monitor.Stop],
// which the playback coordinator calls around each reply. A background
// goroutine periodically transcribes the sliding buffer and, when the text is
// a stop command, raises the shared [playback.CancelFlag].
package interrupt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/chica/internal/playback"
	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/stt"
)

// Defaults for [New].
const (
	DefaultWindow       = 3 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultLanguage     = "pt"
)

// Compile-time interface assertion.
var _ playback.Monitor = (*Monitor)(nil)

// Option is a functional option for [New].
type Option func(*Monitor)

// WithWindow bounds the buffered audio to the most recent d.
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithPollInterval sets how often the buffer is transcribed.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithLanguage sets the language hint passed to the STT provider.
func WithLanguage(lang string) Option {
	return func(m *Monitor) { m.language = lang }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithDetectHook registers fn to be called with the transcript each time a
// stop command interrupts playback.
func WithDetectHook(fn func(text string)) Option {
	return func(m *Monitor) { m.onDetect = fn }
}

// Monitor listens for stop commands during playback.
//
// All methods are safe for concurrent use.
type Monitor struct {
	stt      stt.Provider
	isStop   func(string) bool
	window   time.Duration
	poll     time.Duration
	language string
	log      *slog.Logger
	onDetect func(string)

	mu     sync.Mutex
	active bool
	gen    uint64
	buf    []int16
	rate   int
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor that transcribes with provider and treats a
// transcript as a stop command when isStop returns true.
func New(provider stt.Provider, isStop func(string) bool, opts ...Option) *Monitor {
	m := &Monitor{
		stt:      provider,
		isStop:   isStop,
		window:   DefaultWindow,
		poll:     DefaultPollInterval,
		language: DefaultLanguage,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Feed buffers a captured frame. Frames fed while the monitor is inactive are
// discarded. Feed never blocks on transcription.
func (m *Monitor) Feed(f audio.Frame) {
	if len(f.Samples) == 0 || f.SampleRate <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	if m.rate != f.SampleRate {
		m.buf = m.buf[:0]
		m.rate = f.SampleRate
	}
	m.buf = append(m.buf, f.Samples...)
	if limit := int(m.window.Seconds() * float64(m.rate)); len(m.buf) > limit {
		m.buf = append(m.buf[:0], m.buf[len(m.buf)-limit:]...)
	}
}

// Active reports whether the monitor is between Start and Stop.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Buffered returns the duration of audio currently buffered.
func (m *Monitor) Buffered() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rate == 0 {
		return 0
	}
	return time.Duration(len(m.buf)) * time.Second / time.Duration(m.rate)
}

// Start clears the buffer and begins polling. flag is raised when a stop
// command is heard. Starting an active monitor restarts it.
func (m *Monitor) Start(ctx context.Context, flag *playback.CancelFlag) {
	m.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.active = true
	m.buf = m.buf[:0]
	m.rate = 0
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(ctx, gen, flag, done)
}

// Stop ends polling and clears the buffer. It waits for the polling loop to
// exit but not for an in-flight transcription, whose result is discarded.
// Stop is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.gen++
	m.buf = m.buf[:0]
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, gen uint64, flag *playback.CancelFlag, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	// Scoped to this session so a transcription abandoned by Stop never
	// holds back the next one.
	var inflight atomic.Bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if flag.IsSet() {
			return
		}
		if !inflight.CompareAndSwap(false, true) {
			continue
		}
		clip, ok := m.snapshot(gen)
		if !ok {
			inflight.Store(false)
			continue
		}
		go m.check(ctx, gen, clip, flag, &inflight)
	}
}

// snapshot copies the buffer if gen is still current and the buffer is
// non-empty.
func (m *Monitor) snapshot(gen uint64) (audio.Clip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || len(m.buf) == 0 {
		return audio.Clip{}, false
	}
	return audio.Clip{
		Samples:    append([]int16(nil), m.buf...),
		SampleRate: m.rate,
	}, true
}

func (m *Monitor) check(ctx context.Context, gen uint64, clip audio.Clip, flag *playback.CancelFlag, inflight *atomic.Bool) {
	defer inflight.Store(false)

	tr, err := m.stt.Transcribe(ctx, stt.Request{Audio: clip, Language: m.language})
	if err != nil {
		if ctx.Err() == nil {
			m.log.Debug("interrupt: transcription failed", "err", err)
		}
		return
	}
	if tr.Text == "" || !m.isStop(tr.Text) {
		return
	}

	m.mu.Lock()
	current := gen == m.gen
	if current {
		flag.Set()
	}
	m.mu.Unlock()
	if !current {
		return
	}

	m.log.Info("interrupt: stop command heard", "text", tr.Text)
	if m.onDetect != nil {
		m.onDetect(tr.Text)
	}
}
