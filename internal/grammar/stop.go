package grammar

import "strings"

// Stop is the explicit stop-command grammar used both while awake (to
// short-circuit a turn) and while speaking (to interrupt playback).
type Stop struct {
	// Phrases match anywhere in the transcript.
	Phrases []string

	// Name is the assistant name for the two-token pattern.
	Name string

	// NameStopWords complete the "<name> <stop word>" pattern: the first
	// token must contain Name and the second must be one of these.
	NameStopWords []string
}

// DefaultStop returns the stop grammar for an assistant called "Chica".
func DefaultStop() Stop {
	return Stop{
		Phrases:       []string{"calado", "calada", "silêncio", "silencio"},
		Name:          "chica",
		NameStopWords: []string{"calado", "calada", "silêncio"},
	}
}

// Match reports whether text is a stop command.
func (s Stop) Match(text string) bool {
	norm := Normalize(text)
	if norm == "" {
		return false
	}
	for _, p := range s.Phrases {
		if p = Normalize(p); p != "" && strings.Contains(norm, p) {
			return true
		}
	}

	words := strings.Fields(norm)
	name := Normalize(s.Name)
	if len(words) < 2 || name == "" {
		return false
	}
	return strings.Contains(words[0], name) && contains(normalizeAll(s.NameStopWords), words[1])
}

func normalizeAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = Normalize(s)
	}
	return out
}
