// Package avatar drives the assistant's animated face.
//
// The [Animator] is a pure state machine advanced by [Animator.Tick]: it
// blinks periodically while idle and flaps the mouth while the assistant is
// speaking. The [Broadcaster] wraps an Animator and pushes every frame change
// to browser renderers over a websocket. [Nop] is used when the avatar is
// disabled.
package avatar

import (
	"math"
	"sync"
	"time"
)

// Avatar receives speaking notifications and housekeeping ticks.
type Avatar interface {
	// SetSpeaking switches between the idle and speaking animations.
	SetSpeaking(speaking bool)

	// Tick advances the animation to now.
	Tick(now time.Time)
}

// Frame names one image of the avatar.
type Frame string

// Frames understood by the renderers.
const (
	FrameNormal Frame = "normal"
	FrameBlink  Frame = "olho"
	FrameMouth  Frame = "boca"
)

// Defaults for [NewAnimator].
const (
	DefaultBlinkInterval = 3 * time.Second
	DefaultBlinkDuration = 200 * time.Millisecond
	DefaultSpeakSpeed    = 0.1
)

// Compile-time interface assertions.
var (
	_ Avatar = (*Animator)(nil)
	_ Avatar = Nop{}
)

// Nop is an Avatar that does nothing.
type Nop struct{}

// SetSpeaking implements [Avatar].
func (Nop) SetSpeaking(bool) {}

// Tick implements [Avatar].
func (Nop) Tick(time.Time) {}

// AnimatorOption is a functional option for [NewAnimator].
type AnimatorOption func(*Animator)

// WithBlink sets the idle blink interval and how long each blink lasts.
func WithBlink(interval, duration time.Duration) AnimatorOption {
	return func(a *Animator) {
		if interval > 0 {
			a.blinkInterval = interval
		}
		if duration > 0 {
			a.blinkDuration = duration
		}
	}
}

// WithSpeakSpeed sets how far the mouth phase advances per tick.
func WithSpeakSpeed(speed float64) AnimatorOption {
	return func(a *Animator) {
		if speed > 0 {
			a.speakSpeed = speed
		}
	}
}

// Animator computes the current avatar frame.
//
// All methods are safe for concurrent use.
type Animator struct {
	blinkInterval time.Duration
	blinkDuration time.Duration
	speakSpeed    float64

	mu         sync.Mutex
	speaking   bool
	frame      Frame
	lastBlink  time.Time
	blinkUntil time.Time
	phase      float64
}

// NewAnimator returns an idle Animator showing [FrameNormal]. The blink timer
// starts at start.
func NewAnimator(start time.Time, opts ...AnimatorOption) *Animator {
	a := &Animator{
		blinkInterval: DefaultBlinkInterval,
		blinkDuration: DefaultBlinkDuration,
		speakSpeed:    DefaultSpeakSpeed,
		frame:         FrameNormal,
		lastBlink:     start,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetSpeaking implements [Avatar]. Starting to speak restarts the mouth
// cycle; stopping returns to the idle frame.
func (a *Animator) SetSpeaking(speaking bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if speaking == a.speaking {
		return
	}
	a.speaking = speaking
	a.phase = 0
	a.frame = FrameNormal
	a.blinkUntil = time.Time{}
}

// Tick implements [Avatar].
func (a *Animator) Tick(now time.Time) {
	a.mu.Lock()
	a.tickLocked(now)
	a.mu.Unlock()
}

// Frame returns the frame to display.
func (a *Animator) Frame() Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame
}

// Speaking reports whether the speaking animation is active.
func (a *Animator) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaking
}

func (a *Animator) tickLocked(now time.Time) {
	if a.speaking {
		a.phase += a.speakSpeed
		if math.Sin(a.phase) > 0 {
			a.frame = FrameMouth
		} else {
			a.frame = FrameNormal
		}
		return
	}

	switch {
	case now.Sub(a.lastBlink) > a.blinkInterval:
		a.frame = FrameBlink
		a.lastBlink = now
		a.blinkUntil = now.Add(a.blinkDuration)
	case a.frame == FrameBlink && !now.Before(a.blinkUntil):
		a.frame = FrameNormal
	}
}
