package grammar

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Wake is the wake-word grammar.
//
// A phrase that contains one of the ContextWords (the bare assistant name and
// its common mis-transcriptions) only matches when it is the first thing said
// or directly follows one of the Prefixes ("olá", "ei", "ok", ...). Other
// phrases match anywhere in the transcript.
type Wake struct {
	// Phrases are the accepted wake phrases, e.g. "olá chica".
	Phrases []string

	// ContextWords are tokens that make a phrase context-sensitive.
	ContextWords []string

	// Prefixes are acknowledgement words allowed before a context-sensitive
	// phrase.
	Prefixes []string

	// Name is the assistant name used by the fuzzy pass.
	Name string

	// FuzzyThreshold enables a phonetic pass against Name when > 0: a token
	// whose Double Metaphone code overlaps Name's and whose Jaro-Winkler
	// similarity reaches the threshold counts as the name, under the same
	// context rule.
	FuzzyThreshold float64
}

// DefaultWake returns the wake grammar for an assistant called "Chica".
func DefaultWake() Wake {
	return Wake{
		Phrases:      []string{"olá chica", "ei chica", "chica", "ok chica", "shika", "shica", "hei chica", "hei shica"},
		ContextWords: []string{"chica", "shika", "shica"},
		Prefixes:     []string{"olá", "ola", "oi", "ei", "hey", "hei", "ok", "okay", "tá", "ta", "pronto"},
		Name:         "chica",
	}
}

// Match reports whether text contains a wake phrase. The transcript is
// checked as-is and then with accents folded on both sides.
func (w Wake) Match(text string) bool {
	norm := Normalize(text)
	if norm == "" {
		return false
	}
	if w.match(norm, w.Phrases, w.ContextWords, w.Prefixes) {
		return true
	}

	folded := FoldAccents(norm)
	if w.match(folded, foldAll(w.Phrases), foldAll(w.ContextWords), foldAll(w.Prefixes)) {
		return true
	}

	return w.FuzzyThreshold > 0 && w.fuzzy(strings.Fields(folded), foldAll(w.Prefixes))
}

func (w Wake) match(text string, phrases, contextWords, prefixes []string) bool {
	words := strings.Fields(text)
	for _, phrase := range phrases {
		p := Normalize(phrase)
		if p == "" || !strings.Contains(text, p) {
			continue
		}
		parts := strings.Fields(p)
		if !needsContext(parts, contextWords) {
			return true
		}
		for _, i := range indexOfSequence(words, parts) {
			if inContext(words, i, prefixes) {
				return true
			}
		}
	}
	return false
}

// fuzzy runs the phonetic pass over every token in context.
func (w Wake) fuzzy(words, prefixes []string) bool {
	name := FoldAccents(Normalize(w.Name))
	if name == "" {
		return false
	}
	np, ns := matchr.DoubleMetaphone(name)
	for i, word := range words {
		if !inContext(words, i, prefixes) {
			continue
		}
		wp, ws := matchr.DoubleMetaphone(word)
		if !codesOverlap(np, ns, wp, ws) {
			continue
		}
		if matchr.JaroWinkler(word, name, false) >= w.FuzzyThreshold {
			return true
		}
	}
	return false
}

func needsContext(parts, contextWords []string) bool {
	for _, p := range parts {
		if contains(contextWords, p) {
			return true
		}
	}
	return false
}

func inContext(words []string, i int, prefixes []string) bool {
	return i == 0 || contains(prefixes, words[i-1])
}

func codesOverlap(a1, a2, b1, b2 string) bool {
	for _, a := range []string{a1, a2} {
		if a == "" {
			continue
		}
		if a == b1 || a == b2 {
			return true
		}
	}
	return false
}

func foldAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = FoldAccents(s)
	}
	return out
}
