// Package webrtc implements [vad.Detector] with the WebRTC voice activity
// detector.
//
// The WebRTC detector only accepts 10, 20 or 30 ms frames, so each capture
// frame is split into 20 ms windows and classified by majority vote. Samples
// that do not fill a whole window are ignored.
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/vad"
)

const windowMs = 20

var _ vad.Detector = (*Detector)(nil)

// Option is a functional option for [New].
type Option func(*Detector)

// WithMode sets the WebRTC aggressiveness mode (0 = least, 3 = most
// aggressive at filtering non-speech). Default: 2.
func WithMode(mode int) Option {
	return func(d *Detector) { d.mode = mode }
}

// Detector wraps a native WebRTC VAD instance. The native detector is not
// reentrant, so calls are serialised.
type Detector struct {
	mu   sync.Mutex
	vad  *webrtcvad.VAD
	mode int
}

// New creates a Detector.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{mode: 2}
	for _, o := range opts {
		o(d)
	}
	if d.mode < 0 || d.mode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode %d out of range [0, 3]", d.mode)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create: %w", err)
	}
	if err := v.SetMode(d.mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode: %w", err)
	}
	d.vad = v
	return d, nil
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	window := sampleRate * windowMs / 1000
	if window == 0 || len(frame) < window {
		return false, errors.New("webrtc vad: frame shorter than one 20 ms window")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vad == nil {
		return false, errors.New("webrtc vad: detector closed")
	}
	if !d.vad.ValidRateAndFrameLength(sampleRate, window) {
		return false, fmt.Errorf("webrtc vad: unsupported sample rate %d", sampleRate)
	}

	var speech, total int
	for start := 0; start+window <= len(frame); start += window {
		ok, err := d.vad.Process(sampleRate, audio.SamplesToBytes(frame[start:start+window]))
		if err != nil {
			return false, fmt.Errorf("webrtc vad: process: %w", err)
		}
		total++
		if ok {
			speech++
		}
	}
	return speech*2 >= total, nil
}

// Close implements [vad.Detector]. The native detector is released by the
// garbage collector; Close only drops the reference.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vad = nil
	return nil
}
