// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a Kokoro or Coqui server,
// an offline sherpa-onnx model, or ElevenLabs) and turns a reply into a
// complete [audio.Clip]. Decorators in this package add sentence splitting
// with crossfading ([SentenceSynthesizer]) and a small phrase cache ([Cache]).
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/chica/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns the complete
	// waveform. The sample rate of the returned clip is the backend's native
	// rate; callers resample when needed.
	//
	// Returns an error if the backend cannot be reached, rejects the voice,
	// or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Clip, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
