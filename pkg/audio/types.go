package audio

import "time"

// Frame is one fixed-size block of mono 16-bit PCM delivered by a [Source].
// Frames are immutable once captured; consumers must copy Samples before
// mutating them.
type Frame struct {
	// Samples holds the PCM samples of the frame.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for microphone capture).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

// Clip is a complete mono 16-bit PCM waveform, typically produced by a TTS
// provider or assembled from an utterance.
type Clip struct {
	// Samples holds the PCM samples of the clip.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the wall-clock length of the clip.
func (c Clip) Duration() time.Duration {
	return samplesDuration(len(c.Samples), c.SampleRate)
}

// IsEmpty reports whether the clip holds no samples.
func (c Clip) IsEmpty() bool {
	return len(c.Samples) == 0
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
