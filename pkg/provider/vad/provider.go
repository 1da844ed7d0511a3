// Package vad defines the Detector interface for frame-level voice activity
// detection backends.
//
// A Detector is an optional second opinion for the energy classifier in
// internal/vad: when configured, a frame only counts as speech if its energy
// clears the adaptive threshold AND the detector agrees. This hardens the
// assistant against loud non-speech noise (fans, keyboard clatter) that
// energy alone cannot tell apart from a voice.
//
// Detection is synchronous: IsSpeech runs on the capture path and must return
// within a fraction of the frame duration.
package vad

// Detector classifies a single PCM frame as speech or non-speech.
//
// Implementations must be safe for concurrent use.
type Detector interface {
	// IsSpeech reports whether frame (mono 16-bit PCM at sampleRate) contains
	// speech. Frames whose size the backend cannot handle return an error; the
	// caller then falls back to its own decision.
	IsSpeech(frame []int16, sampleRate int) (bool, error)

	// Close releases the detector's native resources.
	Close() error
}
