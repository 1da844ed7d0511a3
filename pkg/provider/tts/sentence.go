package tts

import (
	"context"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chica/pkg/audio"
)

// Sentence synthesis defaults.
const (
	DefaultCrossfade   = 20 * time.Millisecond
	DefaultParallelism = 4
)

var _ Provider = (*SentenceSynthesizer)(nil)

// SentenceOption is a functional option for [NewSentenceSynthesizer].
type SentenceOption func(*SentenceSynthesizer)

// WithCrossfade sets the overlap between consecutive sentences. Zero
// disables crossfading.
func WithCrossfade(d time.Duration) SentenceOption {
	return func(s *SentenceSynthesizer) { s.fade = max(d, 0) }
}

// WithParallelism bounds how many sentences are synthesized at once.
func WithParallelism(n int) SentenceOption {
	return func(s *SentenceSynthesizer) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// SentenceSynthesizer is a [Provider] decorator that splits text into
// sentences, synthesizes them concurrently and joins the clips in order with
// a short linear crossfade. Short sentences are what the phrase [Cache]
// stores, so the cache usually sits between this decorator and the backend.
type SentenceSynthesizer struct {
	next     Provider
	fade     time.Duration
	parallel int
}

// NewSentenceSynthesizer wraps next.
func NewSentenceSynthesizer(next Provider, opts ...SentenceOption) *SentenceSynthesizer {
	s := &SentenceSynthesizer{next: next, fade: DefaultCrossfade, parallel: DefaultParallelism}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize implements [Provider]. The first failing sentence cancels the
// rest and its error is returned.
func (s *SentenceSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Clip, error) {
	sentences := SplitSentences(text)
	switch len(sentences) {
	case 0:
		return audio.Clip{}, nil
	case 1:
		return s.next.Synthesize(ctx, sentences[0], voice)
	}

	clips := make([]audio.Clip, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, sentence := range sentences {
		g.Go(func() error {
			clip, err := s.next.Synthesize(gctx, sentence, voice)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return audio.Clip{}, err
	}
	return audio.Concat(clips, s.fade), nil
}

// SplitSentences splits text after every run of '.', '!' or '?' that is
// followed by whitespace or the end of the text. Each sentence keeps its
// punctuation; a trailing fragment without any gets a period.
func SplitSentences(text string) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		i := findSentenceBoundary(rest)
		if i < 0 {
			out = appendSentence(out, rest+".")
			break
		}
		out = appendSentence(out, rest[:i+1])
		rest = strings.TrimSpace(rest[i+1:])
	}
	return out
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if strings.Trim(s, ".!? ") == "" {
		return out
	}
	return append(out, s)
}

// findSentenceBoundary returns the index of the last character of the first
// run of sentence-ending punctuation that is either at the end of s or
// immediately followed by whitespace. Returns -1 if there is none.
//
// Abbreviations and decimals such as "3.14" are not boundaries because the
// punctuation is followed by a non-space character.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		if !isTerminal(s[i]) {
			continue
		}
		j := i
		for j+1 < len(s) && isTerminal(s[j+1]) {
			j++
		}
		if j+1 >= len(s) || unicode.IsSpace(rune(s[j+1])) {
			return j
		}
		i = j
	}
	return -1
}

func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}
