package vad

import (
	"time"

	"github.com/MrWong99/chica/pkg/audio"
)

// State is the segmenter state.
type State int

const (
	// StateIdle waits for a run of speech frames.
	StateIdle State = iota

	// StateCollecting accumulates every frame until the silence hangover ends
	// the utterance.
	StateCollecting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// SegmenterConfig holds the timing parameters of a [Segmenter].
type SegmenterConfig struct {
	// SampleRate of the incoming frames in Hz.
	SampleRate int

	// FrameSize is the number of samples per capture frame.
	FrameSize int

	// MinSpeechFrames is the hysteresis: collection starts once the run of
	// consecutive speech frames exceeds this count.
	MinSpeechFrames int

	// SilenceDuration is the hangover: this much consecutive silence ends an
	// utterance.
	SilenceDuration time.Duration

	// MaxDuration caps the buffered audio; older frames are dropped.
	MaxDuration time.Duration
}

// DefaultSegmenterConfig returns the defaults for 16 kHz capture in
// 1024-sample frames.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:      16000,
		FrameSize:       1024,
		MinSpeechFrames: 1,
		SilenceDuration: 1500 * time.Millisecond,
		MaxDuration:     10 * time.Second,
	}
}

// framesFor converts a duration into a whole number of frames, truncating.
func (c SegmenterConfig) framesFor(d time.Duration) int {
	if c.FrameSize <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(c.SampleRate) / float64(c.FrameSize))
}

// Segmenter is the Idle/Collecting utterance state machine.
//
// A Segmenter is owned by the capture goroutine and is not safe for
// concurrent use.
type Segmenter struct {
	cfg           SegmenterConfig
	silenceNeeded int
	maxFrames     int

	state         State
	speechRun     int
	silenceRun    int
	pending       [][]int16
	frames        [][]int16
	droppedFrames int
}

// NewSegmenter returns a Segmenter in [StateIdle].
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		cfg:           cfg,
		silenceNeeded: max(cfg.framesFor(cfg.SilenceDuration), 1),
		maxFrames:     max(cfg.framesFor(cfg.MaxDuration), 1),
	}
}

// SilenceFramesNeeded returns the hangover length in frames.
func (s *Segmenter) SilenceFramesNeeded() int { return s.silenceNeeded }

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Push feeds one classified frame. It returns the completed utterance and
// true when this frame ended the silence hangover.
//
// In Idle, the frames of the current speech run are held back so that the
// run which triggers collection becomes the head of the utterance.
func (s *Segmenter) Push(frame []int16, isSpeech bool) (Utterance, bool) {
	switch s.state {
	case StateIdle:
		if !isSpeech {
			s.speechRun = 0
			s.pending = s.pending[:0]
			return Utterance{}, false
		}
		s.speechRun++
		s.pending = append(s.pending, frame)
		if s.speechRun > s.cfg.MinSpeechFrames {
			s.state = StateCollecting
			s.silenceRun = 0
			s.frames = append(s.frames[:0], s.pending...)
			s.pending = s.pending[:0]
			s.trim()
		}
		return Utterance{}, false

	case StateCollecting:
		s.frames = append(s.frames, frame)
		s.trim()
		if isSpeech {
			s.silenceRun = 0
			return Utterance{}, false
		}
		s.silenceRun++
		if s.silenceRun < s.silenceNeeded {
			return Utterance{}, false
		}
		u := Utterance{
			Frames:     s.frames,
			SampleRate: s.cfg.SampleRate,
			Dropped:    s.droppedFrames,
		}
		s.frames = nil
		s.resetCounters()
		return u, true
	}
	return Utterance{}, false
}

// Reset discards any partial utterance and returns to Idle.
func (s *Segmenter) Reset() {
	s.frames = nil
	s.resetCounters()
}

func (s *Segmenter) resetCounters() {
	s.state = StateIdle
	s.speechRun = 0
	s.silenceRun = 0
	s.droppedFrames = 0
	s.pending = s.pending[:0]
}

// trim drops the oldest frames beyond the configured maximum duration.
func (s *Segmenter) trim() {
	if over := len(s.frames) - s.maxFrames; over > 0 {
		s.frames = s.frames[over:]
		s.droppedFrames += over
	}
}

// Utterance is one contiguous speech segment. Ownership passes to the
// receiver of [Segmenter.Push]; the segmenter never touches it again.
type Utterance struct {
	// Frames are the captured frames in order.
	Frames [][]int16

	// SampleRate of the frames in Hz.
	SampleRate int

	// Dropped counts frames discarded by the maximum-duration cap.
	Dropped int
}

// Samples returns the frames concatenated into one slice.
func (u Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f...)
	}
	return out
}

// Clip returns the utterance as an [audio.Clip].
func (u Utterance) Clip() audio.Clip {
	return audio.Clip{Samples: u.Samples(), SampleRate: u.SampleRate}
}

// Duration returns the length of the buffered audio.
func (u Utterance) Duration() time.Duration {
	return u.Clip().Duration()
}

// RMS returns the energy over the whole utterance.
func (u Utterance) RMS() float64 {
	return audio.RMS(u.Samples())
}
