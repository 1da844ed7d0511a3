// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a whisper.cpp server, an
// in-process whisper or Vosk model, or a hosted API such as Deepgram) and
// exposes a single batch call: the assistant segments utterances itself and
// hands each complete clip over for transcription.
//
// Implementations must be safe for concurrent use: the interruption monitor
// may transcribe while the main pipeline is still waiting on a reply.
package stt

import (
	"context"

	"github.com/MrWong99/chica/pkg/audio"
)

// Request describes one transcription.
type Request struct {
	// Audio is the mono clip to transcribe. Providers resample it when their
	// engine requires a specific rate.
	Audio audio.Clip

	// Language is the ISO 639-1 language hint (e.g., "pt"). Empty lets the
	// provider use its configured default or auto-detect.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts req.Audio to text. An empty Transcript.Text with a
	// nil error means no speech was recognised.
	//
	// Returns an error if the engine fails or ctx is cancelled first.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
