package grammar_test

import (
	"testing"

	"github.com/MrWong99/chica/internal/grammar"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Olá, Chica!", "olá chica"},
		{"  ei...   CHICA?? ", "ei chica"},
		{"", ""},
		{"Silêncio.", "silêncio"},
	}
	for _, tt := range tests {
		if got := grammar.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFoldAccents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"olá", "ola"},
		{"silêncio", "silencio"},
		{"conclusão", "conclusao"},
		{"tá", "ta"},
		{"chica", "chica"},
	}
	for _, tt := range tests {
		if got := grammar.FoldAccents(tt.in); got != tt.want {
			t.Errorf("FoldAccents(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWake_Match(t *testing.T) {
	t.Parallel()

	w := grammar.DefaultWake()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "greeting phrase", text: "Olá, Chica!", want: true},
		{name: "bare name first", text: "Chica, que horas são?", want: true},
		{name: "prefix then name", text: "então ok chica me ajuda", want: true},
		{name: "accentless greeting", text: "ola chica", want: true},
		{name: "mis-transcription after prefix", text: "ei shika", want: true},
		{name: "name mid sentence", text: "eu conversei com a chica ontem", want: false},
		{name: "substring of other word", text: "chicago é longe", want: false},
		{name: "unrelated", text: "bom dia a todos", want: false},
		{name: "empty", text: "", want: false},
		{name: "punctuation only", text: "...", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := w.Match(tt.text); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestWake_NonContextPhraseMatchesAnywhere(t *testing.T) {
	t.Parallel()

	w := grammar.Wake{
		Phrases:      []string{"acorda assistente"},
		ContextWords: []string{"chica"},
	}
	if !w.Match("por favor acorda assistente") {
		t.Error("phrase without context words should match anywhere")
	}
}

func TestWake_Fuzzy(t *testing.T) {
	t.Parallel()

	w := grammar.DefaultWake()
	if w.Match("oi chika") {
		t.Fatal("fuzzy pass should be off by default")
	}

	w.FuzzyThreshold = 0.85
	if !w.Match("oi chika") {
		t.Error("phonetic variant after prefix should wake with fuzzy pass enabled")
	}
	if w.Match("eu vi a chika") {
		t.Error("fuzzy pass must honour the context rule")
	}
}

func TestStop_Match(t *testing.T) {
	t.Parallel()

	s := grammar.DefaultStop()

	tests := []struct {
		text string
		want bool
	}{
		{"silêncio", true},
		{"Silencio!", true},
		{"fica calada por favor", true},
		{"Chica, calado.", true},
		{"continua falando", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := s.Match(tt.text); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestStop_NamePattern(t *testing.T) {
	t.Parallel()

	s := grammar.Stop{Name: "chica", NameStopWords: []string{"pare"}}
	if !s.Match("Chica, pare") {
		t.Error("name + stop word should match")
	}
	if s.Match("pare chica") {
		t.Error("stop word before name should not match the two-token pattern")
	}
	if s.Match("chica") {
		t.Error("single token should not match")
	}
}
