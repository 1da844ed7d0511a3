// Package vosk provides an offline STT provider backed by the Vosk speech
// recognition toolkit (github.com/alphacep/vosk-api/go). Vosk ships small
// Portuguese models (vosk-model-small-pt) that run comfortably on a CPU and
// make a good fallback when no whisper server is reachable.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	vosklib "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider with a Vosk model loaded in-process. Each
// transcription creates a short-lived recognizer; the model is shared.
type Provider struct {
	mu       sync.RWMutex
	model    *vosklib.VoskModel
	language string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage records the language of the loaded model. Vosk models are
// single-language; the value is only reported back in transcripts.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the Vosk model directory at modelPath.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	vosklib.SetLogLevel(-1)
	model, err := vosklib.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "pt"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close frees the model.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: %w", err)
	}
	if req.Audio.IsEmpty() {
		return stt.Transcript{}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return stt.Transcript{}, errors.New("vosk: provider is closed")
	}

	rec, err := vosklib.NewRecognizer(p.model, float64(req.Audio.SampleRate))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	defer rec.Free()

	rec.AcceptWaveform(audio.SamplesToBytes(req.Audio.Samples))
	text, err := parseResult(rec.FinalResult())
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: text, Language: p.language, Duration: req.Audio.Duration()}, nil
}

// parseResult extracts the text from a Vosk JSON result.
func parseResult(raw string) (string, error) {
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("vosk: parse result: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
