// Package sherpa provides an offline TTS provider that runs a Kokoro model
// in-process through sherpa-onnx. Blended voices are rendered once per
// component voice and mixed sample by sample using the blend weights.
package sherpa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Config locates the Kokoro model files.
type Config struct {
	// Model is the path to model.onnx.
	Model string
	// Voices is the path to voices.bin.
	Voices string
	// Tokens is the path to tokens.txt.
	Tokens string
	// DataDir is the espeak-ng data directory.
	DataDir string
	// Lexicon is an optional comma-separated list of lexicon files.
	Lexicon string
	// Lang is the default language (e.g., "pt-br").
	Lang string
	// Speakers maps voice names to speaker IDs in voices.bin. Voice IDs that
	// are plain integers are used directly.
	Speakers map[string]int
	// NumThreads for inference. Zero means 2.
	NumThreads int
	// Provider is the onnxruntime execution provider ("cpu", "cuda", "coreml").
	Provider string
}

// Provider implements tts.Provider with a local Kokoro model. Generation is
// serialised: the native engine is not safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	engine   *sherpa.OfflineTts
	speakers map[string]int
}

// New loads the model described by cfg.
func New(cfg Config) (*Provider, error) {
	for name, path := range map[string]string{"model": cfg.Model, "voices": cfg.Voices, "tokens": cfg.Tokens} {
		if path == "" {
			return nil, fmt.Errorf("sherpa: %s path must not be empty", name)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("sherpa: %s: %w", name, err)
		}
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}

	c := &sherpa.OfflineTtsConfig{}
	c.Model.Kokoro.Model = cfg.Model
	c.Model.Kokoro.Voices = cfg.Voices
	c.Model.Kokoro.Tokens = cfg.Tokens
	c.Model.Kokoro.DataDir = cfg.DataDir
	c.Model.Kokoro.Lexicon = cfg.Lexicon
	c.Model.Kokoro.Lang = cfg.Lang
	c.Model.Kokoro.LengthScale = 1.0
	c.Model.NumThreads = cfg.NumThreads
	c.Model.Provider = cfg.Provider
	c.MaxNumSentences = 1

	engine := sherpa.NewOfflineTts(c)
	if engine == nil {
		return nil, errors.New("sherpa: failed to create offline tts")
	}
	return &Provider{engine: engine, speakers: cfg.Speakers}, nil
}

// Close releases the native engine. It is safe to call more than once.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine != nil {
		sherpa.DeleteOfflineTts(p.engine)
		p.engine = nil
	}
	return nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	if text == "" {
		return audio.Clip{}, nil
	}
	speed := float32(voice.Speed)
	if speed <= 0 {
		speed = 1
	}

	var (
		parts   []audio.Clip
		weights []float64
	)
	for _, v := range voice.Voices() {
		if err := ctx.Err(); err != nil {
			return audio.Clip{}, fmt.Errorf("sherpa: %w", err)
		}
		sid, err := resolveSpeaker(v.Voice, p.speakers)
		if err != nil {
			return audio.Clip{}, err
		}
		clip, err := p.generate(text, sid, speed)
		if err != nil {
			return audio.Clip{}, err
		}
		parts = append(parts, clip)
		weights = append(weights, v.Weight)
	}
	return mix(parts, weights), nil
}

func (p *Provider) generate(text string, sid int, speed float32) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return audio.Clip{}, errors.New("sherpa: provider is closed")
	}
	out := p.engine.Generate(text, sid, speed)
	if out == nil {
		return audio.Clip{}, errors.New("sherpa: generation failed")
	}
	return audio.Clip{Samples: audio.Float32ToSamples(out.Samples), SampleRate: out.SampleRate}, nil
}

func resolveSpeaker(name string, speakers map[string]int) (int, error) {
	if sid, ok := speakers[name]; ok {
		return sid, nil
	}
	if sid, err := strconv.Atoi(name); err == nil && sid >= 0 {
		return sid, nil
	}
	if name == "" {
		return 0, nil
	}
	return 0, fmt.Errorf("sherpa: unknown voice %q", name)
}

// mix sums clips scaled by their weights, truncated to the shortest clip. A
// single clip is returned unchanged.
func mix(clips []audio.Clip, weights []float64) audio.Clip {
	if len(clips) == 0 {
		return audio.Clip{}
	}
	if len(clips) == 1 {
		return clips[0]
	}
	n := len(clips[0].Samples)
	for _, c := range clips[1:] {
		n = min(n, len(c.Samples))
	}
	acc := make([]float32, n)
	for i, c := range clips {
		w := float32(weights[i])
		for j := range n {
			acc[j] += float32(c.Samples[j]) / 32768 * w
		}
	}
	return audio.Clip{Samples: audio.Float32ToSamples(acc), SampleRate: clips[0].SampleRate}
}
