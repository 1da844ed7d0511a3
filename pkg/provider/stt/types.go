package stt

import "time"

// Transcript is the result of a transcription.
type Transcript struct {
	// Text is the transcribed speech content, trimmed.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Language is the detected or requested language, when the provider reports it.
	Language string

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}
