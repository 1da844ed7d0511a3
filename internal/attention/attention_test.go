package attention_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chica/internal/attention"
	"github.com/MrWong99/chica/internal/grammar"
	"github.com/MrWong99/chica/pkg/provider/llm"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMachine(t *testing.T) (*attention.Machine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := attention.New(attention.Config{
		Wake: grammar.DefaultWake(),
		Stop: grammar.DefaultStop(),
	}, attention.WithClock(clk.Now))
	return m, clk
}

func TestMachine_StartsAsleep(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	if got := m.State(); got != attention.Asleep {
		t.Errorf("State() = %v, want asleep", got)
	}
}

func TestMachine_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		awake     bool
		text      string
		want      attention.Decision
		wantState attention.State
	}{
		{"asleep chatter ignored", false, "que horas são", attention.Ignored, attention.Asleep},
		{"asleep blank ignored", false, "  ...  ", attention.Ignored, attention.Asleep},
		{"asleep wake phrase", false, "Olá, Chica!", attention.Woken, attention.Awake},
		{"asleep stop ignored", false, "silêncio", attention.Ignored, attention.Asleep},
		{"awake stop", true, "silêncio", attention.Stopped, attention.Awake},
		{"awake name stop", true, "chica calada", attention.Stopped, attention.Awake},
		{"awake conversation", true, "por que o céu é azul", attention.Converse, attention.Awake},
		{"awake wake phrase is conversation", true, "olá chica", attention.Converse, attention.Awake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newMachine(t)
			if tt.awake {
				m.Handle("olá chica")
			}
			if got := m.Handle(tt.text); got != tt.want {
				t.Errorf("Handle(%q) = %v, want %v", tt.text, got, tt.want)
			}
			if got := m.State(); got != tt.wantState {
				t.Errorf("State() = %v, want %v", got, tt.wantState)
			}
		})
	}
}

func TestMachine_WakeLeavesHistoryAlone(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	m.Handle("olá chica")
	if got := m.Recent(); len(got) != 0 {
		t.Errorf("Recent() after wake = %v, want empty", got)
	}
}

func TestMachine_HistoryBounded(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	m.Handle("olá chica")

	for i := range 3 {
		m.Append(fmt.Sprintf("pergunta %d", i), fmt.Sprintf("resposta %d", i))
	}

	got := m.Recent()
	want := []llm.Message{
		{Role: llm.RoleAssistant, Content: "resposta 1"},
		{Role: llm.RoleUser, Content: "pergunta 2"},
		{Role: llm.RoleAssistant, Content: "resposta 2"},
	}
	if len(got) != len(want) {
		t.Fatalf("Recent() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recent()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	// The returned slice is a copy.
	got[0].Content = "mutated"
	if m.Recent()[0].Content != "resposta 1" {
		t.Error("Recent() exposed internal state")
	}
}

func TestMachine_RepeatedTurnsAreIndependent(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	m.Handle("olá chica")

	for range 2 {
		if got := m.Handle("conte uma piada"); got != attention.Converse {
			t.Fatalf("Handle() = %v, want converse", got)
		}
		m.Append("conte uma piada", "uma piada")
	}
	if got := len(m.Recent()); got != attention.DefaultHistoryLimit {
		t.Errorf("len(Recent()) = %d, want %d", got, attention.DefaultHistoryLimit)
	}
}

func TestMachine_CheckInactivity(t *testing.T) {
	t.Parallel()

	t.Run("sleeps after timeout and clears history", func(t *testing.T) {
		t.Parallel()
		m, clk := newMachine(t)
		m.Handle("olá chica")
		m.Append("oi", "olá")

		clk.Advance(attention.DefaultInactivityTimeout)
		if m.CheckInactivity(false) {
			t.Fatal("slept at exactly the timeout")
		}
		clk.Advance(time.Millisecond)
		if !m.CheckInactivity(false) {
			t.Fatal("CheckInactivity() = false after timeout")
		}
		if m.State() != attention.Asleep {
			t.Errorf("State() = %v, want asleep", m.State())
		}
		if len(m.Recent()) != 0 {
			t.Error("history not cleared on sleep")
		}
	})

	t.Run("busy never sleeps", func(t *testing.T) {
		t.Parallel()
		m, clk := newMachine(t)
		m.Handle("olá chica")
		clk.Advance(time.Hour)
		if m.CheckInactivity(true) {
			t.Error("slept while busy")
		}
		if m.State() != attention.Awake {
			t.Errorf("State() = %v, want awake", m.State())
		}
	})

	t.Run("touch extends", func(t *testing.T) {
		t.Parallel()
		m, clk := newMachine(t)
		m.Handle("olá chica")
		clk.Advance(10 * time.Second)
		m.Touch()
		clk.Advance(10 * time.Second)
		if m.CheckInactivity(false) {
			t.Error("slept despite recent activity")
		}
	})

	t.Run("asleep stays asleep", func(t *testing.T) {
		t.Parallel()
		m, clk := newMachine(t)
		clk.Advance(time.Hour)
		if m.CheckInactivity(false) {
			t.Error("CheckInactivity() reported a transition while asleep")
		}
	})
}

func TestMachine_Reload(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)

	wake := grammar.DefaultWake()
	wake.Phrases = append(wake.Phrases, "acorda")
	m.SetGrammar(wake, grammar.DefaultStop())
	if got := m.Handle("acorda"); got != attention.Woken {
		t.Fatalf("Handle(acorda) = %v, want woken", got)
	}

	m.SetInactivityTimeout(time.Second)
	m.SetInactivityTimeout(0)
	clk.Advance(2 * time.Second)
	if !m.CheckInactivity(false) {
		t.Error("reloaded timeout not applied")
	}
}
