// Package attention implements the assistant's asleep/awake state machine.
//
// The [Machine] decides how a transcribed utterance is treated: while asleep
// only the wake grammar is evaluated; while awake the stop grammar is checked
// first and everything else is conversation. It also owns the bounded
// conversation history and the inactivity timer that puts the assistant back
// to sleep.
//
// All methods are safe for concurrent use.
package attention

import (
	"sync"
	"time"

	"github.com/MrWong99/chica/internal/grammar"
	"github.com/MrWong99/chica/pkg/provider/llm"
)

// Defaults used when a [Config] field is zero.
const (
	DefaultInactivityTimeout = 15 * time.Second
	DefaultHistoryLimit      = 3
)

// State is the attention state.
type State int

const (
	// Asleep is the initial state. Only the wake grammar is evaluated.
	Asleep State = iota

	// Awake means utterances are conversation unless they are stop commands.
	Awake
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Asleep:
		return "asleep"
	case Awake:
		return "awake"
	default:
		return "unknown"
	}
}

// Decision is the outcome of [Machine.Handle].
type Decision int

const (
	// Ignored means the utterance is dropped without any reply.
	Ignored Decision = iota

	// Woken means the assistant just woke up. The caller plays the greeting;
	// the history is untouched.
	Woken

	// Stopped means a stop command was heard. No LLM call is made.
	Stopped

	// Converse means the utterance should be sent to the language model.
	Converse
)

// String implements [fmt.Stringer].
func (d Decision) String() string {
	switch d {
	case Ignored:
		return "ignored"
	case Woken:
		return "woken"
	case Stopped:
		return "stopped"
	case Converse:
		return "converse"
	default:
		return "unknown"
	}
}

// Config configures a [Machine].
type Config struct {
	// Wake is the grammar that wakes the assistant.
	Wake grammar.Wake

	// Stop is the grammar for stop commands while awake.
	Stop grammar.Stop

	// InactivityTimeout is how long the assistant stays awake without
	// activity. Zero means [DefaultInactivityTimeout].
	InactivityTimeout time.Duration

	// HistoryLimit is the number of most recent messages kept and returned by
	// [Machine.Recent]. Zero means [DefaultHistoryLimit].
	HistoryLimit int
}

// Option is a functional option for [New].
type Option func(*Machine)

// WithClock replaces the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithState sets the initial state. The default is [Asleep].
func WithState(s State) Option {
	return func(m *Machine) { m.state = s }
}

// Machine is the attention state machine.
type Machine struct {
	mu           sync.Mutex
	cfg          Config
	now          func() time.Time
	state        State
	lastActivity time.Time
	history      []llm.Message
}

// New creates a Machine in the [Asleep] state.
func New(cfg Config, opts ...Option) *Machine {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	m := &Machine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.lastActivity = m.now()
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle classifies a transcript and applies the resulting transition.
// Blank transcripts are [Ignored].
func (m *Machine) Handle(text string) Decision {
	if grammar.Normalize(text) == "" {
		return Ignored
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Asleep {
		if !m.cfg.Wake.Match(text) {
			return Ignored
		}
		m.state = Awake
		m.lastActivity = m.now()
		return Woken
	}

	if m.cfg.Stop.Match(text) {
		return Stopped
	}
	return Converse
}

// IsStop reports whether text is a stop command, regardless of state.
func (m *Machine) IsStop(text string) bool {
	m.mu.Lock()
	stop := m.cfg.Stop
	m.mu.Unlock()
	return stop.Match(text)
}

// Touch records activity. It has no effect on the state.
func (m *Machine) Touch() {
	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()
}

// LastActivity returns the time of the last recorded activity.
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// CheckInactivity puts an awake assistant to sleep and clears the history
// when it has been inactive longer than the timeout. busy reports whether a
// pipeline is processing or speaking; a busy assistant never falls asleep.
// It reports whether the transition happened.
func (m *Machine) CheckInactivity(busy bool) bool {
	if busy {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Awake || m.now().Sub(m.lastActivity) <= m.cfg.InactivityTimeout {
		return false
	}
	m.sleepLocked()
	return true
}

// Sleep forces the assistant to sleep and clears the history.
func (m *Machine) Sleep() {
	m.mu.Lock()
	m.sleepLocked()
	m.mu.Unlock()
}

func (m *Machine) sleepLocked() {
	m.state = Asleep
	m.history = nil
}

// Append records one exchange and trims the stored history to the limit.
func (m *Machine) Append(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if over := len(m.history) - m.cfg.HistoryLimit; over > 0 {
		m.history = append([]llm.Message(nil), m.history[over:]...)
	}
}

// Recent returns a copy of the most recent messages, oldest first.
func (m *Machine) Recent() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Message(nil), m.history...)
}

// ── Hot reload ──────────────────────────────────────────────────────────────

// SetGrammar replaces the wake and stop grammars.
func (m *Machine) SetGrammar(wake grammar.Wake, stop grammar.Stop) {
	m.mu.Lock()
	m.cfg.Wake, m.cfg.Stop = wake, stop
	m.mu.Unlock()
}

// SetInactivityTimeout replaces the inactivity timeout. Non-positive values
// are ignored.
func (m *Machine) SetInactivityTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.InactivityTimeout = d
	m.mu.Unlock()
}
