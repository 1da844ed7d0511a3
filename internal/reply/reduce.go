// Package reply turns raw language-model output into text the assistant can
// speak.
//
// [Reduce] derives a final answer from a reply that carries only reasoning
// text, [Split] separates inline <think> blocks from the visible answer, and
// [CleanForSpeech] strips formatting a speech engine would read aloud.
package reply

import (
	"strings"
)

// Apology is returned when neither content nor reasoning yields any text.
const Apology = "Desculpe, não consegui processar a resposta."

// ── Phrase tables ───────────────────────────────────────────────────────────
//
// Order matters: indicator phrases are scanned in this order and a later
// phrase only wins when its last occurrence sits strictly further right.

var finalAnswerIndicators = []string{
	"final answer:", "resposta final:", "answer:", "resposta:",
	"responder:", "conclusão:", "portanto", "assim", "dessa forma",
}

var identityIndicators = []string{
	"eu sou a chica", "sou azul porque",
	"minha identidade", "como posso ajudar",
	"sua assistente",
}

var previousAnswerRefs = []string{
	"previous answer", "last answer", "already answered", "similar question",
}

var reasoningLineMarkers = []string{
	"okay,", "first,", "next,", "then,", "now,",
	"i need to", "i should", "let me", "i think",
	"the user", "user asked", "user said",
	"wait,", "but", "actually,", "let me check",
	"what was", "last answer", "previous answer",
	"already answered", "similar question",
}

var answerLineMarkers = []string{
	"final answer", "resposta", "answer", "conclusão",
	"portanto", "assim", "dessa forma", "logo",
}

var metaPhrases = []string{"the user", "user asked", "i need to", "let me"}

var reasoningPreambles = []string{
	"Okay, ", "First, ", "Next, ", "Then, ", "Now, ",
	"I need to ", "I should ", "Let me ", "I think ",
	"The user ", "User asked", "User said",
}

// Reduce returns the text the assistant should say for a model reply.
//
// Non-empty content always wins. Otherwise the reasoning text is reduced by a
// best-effort heuristic: the tail after the last answer indicator, then a
// line filter that drops obvious reasoning, then the reasoning with known
// preambles stripped. When both inputs are blank the result is [Apology].
func Reduce(content, reasoning string) string {
	if c := strings.TrimSpace(content); c != "" {
		return c
	}
	if strings.TrimSpace(reasoning) == "" {
		return Apology
	}
	if s, ok := fromIndicator(reasoning); ok {
		return s
	}
	if s, ok := fromLines(reasoning); ok {
		return s
	}
	return stripPreambles(reasoning)
}

func fromIndicator(reasoning string) (string, bool) {
	lower := strings.ToLower(reasoning)
	pos, phrase := -1, ""
	for _, p := range finalAnswerIndicators {
		if i := strings.LastIndex(lower, p); i > pos {
			pos, phrase = i, p
		}
	}
	if pos < 0 {
		return "", false
	}
	// ToLower can change byte lengths for some runes; map back only when the
	// lowered text kept the original layout.
	tail := lower[pos+len(phrase):]
	if len(lower) == len(reasoning) {
		tail = reasoning[pos+len(phrase):]
	}
	extracted := strings.TrimLeft(strings.TrimSpace(tail), " :.-")
	if extracted == "" {
		return "", false
	}
	if containsAny(strings.ToLower(extracted), identityIndicators) && containsAny(lower, previousAnswerRefs) {
		return "", false
	}
	return extracted, true
}

type line struct {
	text   string
	answer bool
}

func fromLines(reasoning string) (string, bool) {
	var kept []line
	for raw := range strings.SplitSeq(reasoning, "\n") {
		l := strings.TrimSpace(raw)
		if l == "" {
			continue
		}
		lower := strings.ToLower(l)
		if containsAny(lower, reasoningLineMarkers) {
			continue
		}
		kept = append(kept, classifyLine(l, lower))
	}
	if len(kept) == 0 {
		return "", false
	}

	for i := len(kept) - 1; i >= 0; i-- {
		if kept[i].answer {
			return strings.TrimSpace(kept[i].text), true
		}
	}

	tail := kept
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	candidate := strings.TrimSpace(joinLines(tail))
	if len(candidate) > 10 && !containsAny(strings.ToLower(candidate), metaPhrases) {
		return candidate, true
	}
	if all := strings.TrimSpace(joinLines(kept)); all != "" {
		return all, true
	}
	return "", false
}

// classifyLine marks a line as an answer line when it carries an answer
// marker followed by text; the text after the first such marker is kept.
func classifyLine(l, lower string) line {
	if len(lower) != len(l) {
		return line{text: l}
	}
	for _, p := range answerLineMarkers {
		i := strings.Index(lower, p)
		if i < 0 {
			continue
		}
		if part := strings.TrimLeft(strings.TrimSpace(l[i+len(p):]), " :.-"); part != "" {
			return line{text: part, answer: true}
		}
	}
	return line{text: l}
}

func stripPreambles(reasoning string) string {
	s := reasoning
	for _, p := range reasoningPreambles {
		s = strings.TrimPrefix(s, p)
	}
	return strings.TrimSpace(s)
}

func joinLines(ls []line) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.text
	}
	return strings.Join(parts, " ")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
