// Package kokoro provides a TTS provider for Kokoro models served behind an
// OpenAI-compatible /v1/audio/speech endpoint (Kokoro-FastAPI and similar).
// Voice blends are rendered in the server's "voice(weight)+voice(weight)"
// syntax.
package kokoro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel = "kokoro"

	// nativeRate is the sample rate of Kokoro output.
	nativeRate = 24000
)

// Format is the audio container requested from the server.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatPCM Format = "pcm"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the model name sent with each request. Defaults to "kokoro".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithFormat sets the response format. Defaults to [FormatWAV].
func WithFormat(f Format) Option {
	return func(p *Provider) { p.format = f }
}

// WithAPIKey sets the bearer token for servers that require one.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements tts.Provider against a Kokoro speech server.
type Provider struct {
	client  oai.Client
	model   string
	format  Format
	apiKey  string
	timeout time.Duration
}

// New creates a Provider for the server at baseURL (e.g.,
// "http://localhost:8880/v1").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("kokoro: baseURL must not be empty")
	}
	p := &Provider{model: defaultModel, format: FormatWAV, apiKey: "local"}
	for _, o := range opts {
		o(p)
	}
	switch p.format {
	case FormatWAV, FormatMP3, FormatPCM:
	default:
		return nil, fmt.Errorf("kokoro: unsupported format %q", p.format)
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(p.apiKey),
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, nil
	}
	id := voiceID(voice)
	if id == "" {
		return audio.Clip{}, errors.New("kokoro: voice must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	}
	if voice.Speed > 0 {
		params.Speed = oai.Float(voice.Speed)
	}
	var reqOpts []option.RequestOption
	if voice.Language != "" {
		reqOpts = append(reqOpts, option.WithJSONSet("lang_code", voice.Language))
	}

	resp, err := p.client.Audio.Speech.New(ctx, params, reqOpts...)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("kokoro: speech: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("kokoro: read response: %w", err)
	}
	clip, err := decode(p.format, body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("kokoro: %w", err)
	}
	return clip, nil
}

func voiceID(v tts.VoiceProfile) string {
	if len(v.Blend) > 1 {
		return tts.FormatBlend(v.Blend)
	}
	return v.ID
}

func decode(f Format, body []byte) (audio.Clip, error) {
	switch f {
	case FormatMP3:
		return audio.DecodeMP3(bytes.NewReader(body))
	case FormatPCM:
		return audio.Clip{Samples: audio.BytesToSamples(body), SampleRate: nativeRate}, nil
	default:
		return audio.DecodeWAV(body)
	}
}
