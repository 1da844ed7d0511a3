// Package audio defines the PCM types and device abstractions used by the
// assistant's capture and playback paths.
//
// The two device abstractions are:
//
//   - [Source]: a capture device that pushes fixed-size [Frame] values to a
//     callback. The callback runs on the device's realtime path and must not
//     block.
//   - [Sink]: a playback device that accepts chunks of samples. Writes block
//     until the device has consumed the chunk, which bounds how far playback
//     can run ahead of a cancellation check.
//
// Implementations live in sub-packages (audio/portaudio for real hardware,
// audio/mock for tests). The package also carries the WAV, MP3 and resampling
// helpers shared by the providers.
package audio

import (
	"context"
	"strings"
)

// Source delivers captured audio frames.
type Source interface {
	// Start begins capture and invokes onFrame for every frame until ctx is
	// cancelled or Close is called. onFrame must return quickly.
	Start(ctx context.Context, onFrame func(Frame)) error

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Sink plays audio samples.
type Sink interface {
	// Open prepares the device for a waveform at sampleRate.
	Open(sampleRate int) error

	// Write plays one chunk of samples, blocking until the device accepted it.
	Write(samples []int16) error

	// Close finishes the current waveform and releases the stream.
	Close() error
}

// DeviceInfo describes an audio device reported by the host.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// defaultDeviceNames are configured names that always select the host default.
var defaultDeviceNames = []string{"", "default", "padrão", "padrao"}

// SelectDevice resolves a configured device name against devices. It prefers
// an exact (case-insensitive) name match, then a substring match. It returns
// ok=false when the host default should be used instead, either because name
// asks for it or because nothing matched. input selects between capture and
// playback capability.
func SelectDevice(name string, devices []DeviceInfo, input bool) (DeviceInfo, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, d := range defaultDeviceNames {
		if want == d {
			return DeviceInfo{}, false
		}
	}

	usable := func(d DeviceInfo) bool {
		if input {
			return d.MaxInputChannels > 0
		}
		return d.MaxOutputChannels > 0
	}

	for _, d := range devices {
		if usable(d) && strings.ToLower(d.Name) == want {
			return d, true
		}
	}
	for _, d := range devices {
		if usable(d) && strings.Contains(strings.ToLower(d.Name), want) {
			return d, true
		}
	}
	return DeviceInfo{}, false
}
