package reply

import (
	"regexp"
	"strings"
)

var (
	listMarkerRe  = regexp.MustCompile(`^\s*(?:[•*\-]+|\d+[.)])\s+`)
	bracketedRe   = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	bangsRe       = regexp.MustCompile(`!{2,}`)
	questionsRe   = regexp.MustCompile(`\?{2,}`)
	spaceRe       = regexp.MustCompile(`\s+`)
	spaceCommaRe  = regexp.MustCompile(`\s+,`)
	doubleCommaRe = regexp.MustCompile(`,(\s*,)+`)
)

// Symbols a speech engine would either read aloud or choke on.
const unspoken = "*~_`|•·©®™" +
	"→←↑↓↔↕⇒⇐⇑⇓" +
	"∞≠≤≥≈≡≅∀∃∄∅∆∇∈∉∋∌∏∑√∛∜∝∟∠∧∨∩∪∫∬∭∮∴∵∶∷∼∽" +
	"\"'“”‘’«»"

var dashes = strings.NewReplacer("—", ", ", "–", ", ", "−", "-")

// CleanForSpeech strips markdown, emoji, bracketed asides and list markers
// from text and guarantees it ends with terminal punctuation. Blank input
// yields "".
func CleanForSpeech(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var lines []string
	for l := range strings.SplitSeq(text, "\n") {
		l = strings.TrimSpace(listMarkerRe.ReplaceAllString(l, ""))
		if l != "" {
			lines = append(lines, l)
		}
	}
	text = strings.Join(lines, " ")

	text = strings.Map(func(r rune) rune {
		switch {
		case r > 0xFFFF, r == '\u200d', r == '\ufe0f':
			return -1
		case strings.ContainsRune(unspoken, r):
			return -1
		}
		return r
	}, text)

	text = bracketedRe.ReplaceAllString(text, "")
	text = bangsRe.ReplaceAllString(text, "!")
	text = questionsRe.ReplaceAllString(text, "?")
	text = dashes.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = spaceCommaRe.ReplaceAllString(text, ",")
	text = doubleCommaRe.ReplaceAllString(text, ",")
	text = strings.Trim(text, " ,")

	if text == "" {
		return ""
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
	default:
		text += "."
	}
	return text
}
