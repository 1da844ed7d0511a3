// Package vad turns a continuous stream of capture frames into discrete
// utterances.
//
// Two stages run on the capture path:
//
//  1. [Classifier] decides speech / silence per frame from RMS energy against
//     an adaptive noise floor, optionally confirmed by a [vad.Detector].
//  2. [Segmenter] accumulates frames with start hysteresis and a silence
//     hangover, and emits complete [Utterance] values.
//
// [Filter] is the post-hoc gate applied to emitted utterances before they
// reach transcription.
package vad

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/vad"
)

// ClassifierConfig holds the energy thresholds of a [Classifier]. All energy
// values are RMS on the normalised [0, 1] amplitude scale.
type ClassifierConfig struct {
	// FixedThreshold is the lower bound of the speech threshold.
	FixedThreshold float64

	// InitialNoiseFloor seeds the noise floor estimate.
	InitialNoiseFloor float64

	// NoiseUpdateMultiplier gates noise floor updates: the floor only adapts
	// on frames with rms < FixedThreshold * NoiseUpdateMultiplier.
	NoiseUpdateMultiplier float64

	// Smoothing is the exponential smoothing weight kept from the previous
	// floor estimate, in [0, 1).
	Smoothing float64

	// DynamicMultiplier scales the noise floor into the dynamic threshold.
	DynamicMultiplier float64
}

// DefaultClassifierConfig returns thresholds tuned for a 16 kHz desk microphone.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		FixedThreshold:        0.005,
		InitialNoiseFloor:     0.001,
		NoiseUpdateMultiplier: 1.5,
		Smoothing:             0.8,
		DynamicMultiplier:     2.0,
	}
}

// Decision is the result of classifying one frame.
type Decision struct {
	IsSpeech bool

	// RMS is the frame energy.
	RMS float64

	// Threshold is the dynamic threshold the frame was compared against.
	Threshold float64
}

// ClassifierOption configures a [Classifier].
type ClassifierOption func(*Classifier)

// WithDetector adds a secondary frame detector. A frame is only speech when
// both the energy test and the detector agree; detector errors fall back to
// the energy decision.
func WithDetector(d vad.Detector, sampleRate int) ClassifierOption {
	return func(c *Classifier) {
		c.detector = d
		c.sampleRate = sampleRate
	}
}

// Classifier is the adaptive-noise-floor speech classifier. The noise floor
// is seeded once at construction and never reset.
//
// Classify must only be called from the capture goroutine; NoiseFloor is
// safe to call from any goroutine.
type Classifier struct {
	cfg        ClassifierConfig
	detector   vad.Detector
	sampleRate int

	mu    sync.Mutex
	floor float64
}

// NewClassifier returns a Classifier seeded with cfg.InitialNoiseFloor.
func NewClassifier(cfg ClassifierConfig, opts ...ClassifierOption) *Classifier {
	c := &Classifier{cfg: cfg, floor: max(cfg.InitialNoiseFloor, 0)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify computes the frame's RMS, adapts the noise floor when the frame is
// below the update gate, and compares the RMS against the dynamic threshold
// max(FixedThreshold, floor * DynamicMultiplier).
func (c *Classifier) Classify(frame []int16) Decision {
	rms := audio.RMS(frame)

	c.mu.Lock()
	if rms < c.cfg.FixedThreshold*c.cfg.NoiseUpdateMultiplier {
		c.floor = c.floor*c.cfg.Smoothing + rms*(1-c.cfg.Smoothing)
		if c.floor < 0 {
			c.floor = 0
		}
	}
	threshold := max(c.cfg.FixedThreshold, c.floor*c.cfg.DynamicMultiplier)
	c.mu.Unlock()

	d := Decision{IsSpeech: rms > threshold, RMS: rms, Threshold: threshold}
	if d.IsSpeech && c.detector != nil {
		ok, err := c.detector.IsSpeech(frame, c.sampleRate)
		if err != nil {
			slog.Debug("vad: detector failed, using energy decision", "err", err)
		} else {
			d.IsSpeech = ok
		}
	}
	return d
}

// NoiseFloor returns the current noise floor estimate.
func (c *Classifier) NoiseFloor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.floor
}
