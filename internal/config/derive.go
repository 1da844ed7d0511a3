package config

import (
	"strings"
	"time"

	"github.com/MrWong99/chica/internal/grammar"
	"github.com/MrWong99/chica/internal/vad"
	"github.com/MrWong99/chica/pkg/provider/tts"
)

// Filter defaults used when the listen section leaves them at zero.
const (
	DefaultMinSpeechDuration = 300 * time.Millisecond
	DefaultEnergyMultiplier  = 1.2
)

// Greeting returns the greeting with the assistant name substituted.
func (c *Config) Greeting() string {
	return expandName(c.Assistant.Greeting, c.Assistant.Name)
}

// SystemPrompt returns the system prompt with the assistant name substituted.
func (c *Config) SystemPrompt() string {
	return expandName(c.Assistant.SystemPrompt, c.Assistant.Name)
}

func expandName(s, name string) string {
	return strings.ReplaceAll(s, "{name}", name)
}

// WakeGrammar returns the wake grammar. Empty lists fall back to the built-in
// grammar for the default name, or to phrases derived from the configured
// name otherwise.
func (c *Config) WakeGrammar() grammar.Wake {
	name := grammar.Normalize(c.Assistant.Name)
	w := grammar.DefaultWake()
	if name != "" && name != grammar.Normalize(DefaultName) {
		w.Name = name
		w.ContextWords = []string{name}
		w.Phrases = []string{name}
		for _, p := range []string{"olá", "oi", "ei", "ok"} {
			w.Phrases = append(w.Phrases, p+" "+name)
		}
	}
	g := c.Grammar
	if len(g.WakeWords) > 0 {
		w.Phrases = g.WakeWords
	}
	if len(g.ContextWords) > 0 {
		w.ContextWords = g.ContextWords
	}
	if len(g.Prefixes) > 0 {
		w.Prefixes = g.Prefixes
	}
	w.FuzzyThreshold = g.FuzzyThreshold
	return w
}

// StopGrammar returns the stop grammar. Empty lists keep the built-in words.
func (c *Config) StopGrammar() grammar.Stop {
	s := grammar.DefaultStop()
	if name := grammar.Normalize(c.Assistant.Name); name != "" {
		s.Name = name
	}
	if len(c.Grammar.StopWords) > 0 {
		s.Phrases = c.Grammar.StopWords
	}
	if len(c.Grammar.NameStopWords) > 0 {
		s.NameStopWords = c.Grammar.NameStopWords
	}
	return s
}

// ClassifierConfig returns the frame classifier thresholds, with zero fields
// replaced by [vad.DefaultClassifierConfig].
func (c *Config) ClassifierConfig() vad.ClassifierConfig {
	cc := vad.DefaultClassifierConfig()
	l := c.Listen
	setIf(&cc.FixedThreshold, l.FixedThreshold)
	setIf(&cc.InitialNoiseFloor, l.InitialNoiseFloor)
	setIf(&cc.NoiseUpdateMultiplier, l.NoiseUpdateMultiplier)
	setIf(&cc.Smoothing, l.Smoothing)
	setIf(&cc.DynamicMultiplier, l.DynamicMultiplier)
	return cc
}

// SegmenterConfig returns the utterance segmenter parameters, with zero
// fields replaced by [vad.DefaultSegmenterConfig].
func (c *Config) SegmenterConfig() vad.SegmenterConfig {
	sc := vad.DefaultSegmenterConfig()
	l := c.Listen
	setIf(&sc.SampleRate, l.SampleRate)
	setIf(&sc.FrameSize, l.FrameSize)
	setIf(&sc.MinSpeechFrames, l.MinSpeechFrames)
	setIf(&sc.SilenceDuration, l.SilenceDuration)
	setIf(&sc.MaxDuration, l.MaxDuration)
	return sc
}

// Filter returns the post-segmentation utterance filter.
func (c *Config) Filter() vad.Filter {
	minDur, mult := DefaultMinSpeechDuration, DefaultEnergyMultiplier
	setIf(&minDur, c.Listen.MinSpeechDuration)
	setIf(&mult, c.Listen.EnergyMultiplier)
	return vad.NewFilter(minDur, c.ClassifierConfig().FixedThreshold, mult)
}

// VoiceProfile parses the configured voice into a profile.
func (c *Config) VoiceProfile() (tts.VoiceProfile, error) {
	id, blend, err := tts.ParseBlend(c.Voice.ID)
	if err != nil {
		return tts.VoiceProfile{}, err
	}
	return tts.VoiceProfile{
		ID:       id,
		Name:     c.Voice.ID,
		Provider: c.Providers.TTS.Name,
		Language: c.Voice.Language,
		Speed:    c.Voice.Speed,
		Blend:    blend,
	}, nil
}

func setIf[T int | float64 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
