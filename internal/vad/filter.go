package vad

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTooShort is returned by [Filter.Accept] for utterances shorter than
	// the minimum speech duration.
	ErrTooShort = errors.New("vad: utterance too short")

	// ErrTooQuiet is returned by [Filter.Accept] for utterances whose overall
	// energy is below the energy gate.
	ErrTooQuiet = errors.New("vad: utterance too quiet")
)

// Filter rejects emitted utterances that are unlikely to be real speech.
// Both checks run: the duration check rejects clicks and coughs, the energy
// check rejects low broadband noise whose individual frames crossed the
// frame-level threshold.
type Filter struct {
	// MinDuration is the shortest accepted utterance.
	MinDuration time.Duration

	// MinRMS is the lowest accepted overall energy, usually
	// FixedThreshold * energy multiplier.
	MinRMS float64
}

// NewFilter builds a Filter from the classifier's fixed threshold and an
// energy multiplier.
func NewFilter(minDuration time.Duration, fixedThreshold, energyMultiplier float64) Filter {
	return Filter{MinDuration: minDuration, MinRMS: fixedThreshold * energyMultiplier}
}

// Accept returns nil when u passes both checks. The returned error wraps
// [ErrTooShort] or [ErrTooQuiet].
func (f Filter) Accept(u Utterance) error {
	if d := u.Duration(); d < f.MinDuration {
		return fmt.Errorf("%w: %v < %v", ErrTooShort, d, f.MinDuration)
	}
	if rms := u.RMS(); rms < f.MinRMS {
		return fmt.Errorf("%w: rms %.5f < %.5f", ErrTooQuiet, rms, f.MinRMS)
	}
	return nil
}
