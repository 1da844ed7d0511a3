// Package grammar holds the declarative wake and stop grammars of the
// assistant and the pure functions that evaluate transcripts against them.
//
// Evaluation is independent of the attention state machine: a grammar is a
// plain value and [Wake.Match] / [Stop.Match] have no side effects, so they
// can be tested and hot-swapped on their own.
package grammar

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases text, replaces punctuation and symbols with spaces and
// collapses runs of whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FoldAccents removes combining diacritics ("olá" → "ola", "silêncio" →
// "silencio").
func FoldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// Words returns the normalised tokens of text.
func Words(text string) []string {
	return strings.Fields(Normalize(text))
}

// indexOfSequence returns every index at which seq occurs in words.
func indexOfSequence(words, seq []string) []int {
	var hits []int
	if len(seq) == 0 {
		return nil
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j := range seq {
			if words[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			hits = append(hits, i)
		}
	}
	return hits
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
