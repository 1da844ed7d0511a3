package reply

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Split separates <think>...</think> blocks from a model reply. It returns
// the visible answer and the concatenated reasoning. An unterminated block
// runs to the end of the text, which happens when generation is cut off by
// the token limit.
func Split(text string) (answer, reasoning string) {
	var a, r strings.Builder
	rest := text
	for {
		open := strings.Index(rest, thinkOpen)
		if open < 0 {
			a.WriteString(rest)
			break
		}
		a.WriteString(rest[:open])
		rest = rest[open+len(thinkOpen):]

		end := strings.Index(rest, thinkClose)
		if end < 0 {
			appendReasoning(&r, rest)
			break
		}
		appendReasoning(&r, rest[:end])
		rest = rest[end+len(thinkClose):]
	}
	return strings.TrimSpace(a.String()), r.String()
}

func appendReasoning(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(s)
}
