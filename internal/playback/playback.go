// Package playback plays synthesized replies on the output device while an
// interruption monitor listens for a spoken stop command.
//
// A [Coordinator] writes the waveform in fixed-size chunks and checks a shared
// [CancelFlag] between chunks, so a stop command halts playback within one
// chunk. Whatever happens, the speaking state, the monitor, the avatar and the
// temporary audio file are cleaned up before [Coordinator.Play] returns.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/chica/pkg/audio"
)

// DefaultChunkSize is the number of samples written per device call.
const DefaultChunkSize = 2048

// CancelFlag is a one-way signal shared between the coordinator and the
// interruption monitor. The zero value is unset and ready to use.
type CancelFlag struct {
	v atomic.Bool
}

// Set raises the flag.
func (f *CancelFlag) Set() { f.v.Store(true) }

// IsSet reports whether the flag is raised.
func (f *CancelFlag) IsSet() bool { return f.v.Load() }

func (f *CancelFlag) clear() { f.v.Store(false) }

// Outcome is how a playback ended.
type Outcome int

const (
	// Finished means every sample was written.
	Finished Outcome = iota

	// Cancelled means the flag was raised or the context was cancelled
	// before the end of the waveform.
	Cancelled
)

// String implements [fmt.Stringer].
func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is one waveform to play. Exactly one of Clip and Path is used;
// Path wins when both are set.
type Request struct {
	// Clip is an in-memory waveform.
	Clip audio.Clip

	// Path is a WAV file to load.
	Path string

	// OwnsFile makes the coordinator delete Path once playback ends, whatever
	// the outcome.
	OwnsFile bool
}

// Monitor listens for interruptions during playback.
type Monitor interface {
	// Start begins listening; a detected stop command sets flag.
	Start(ctx context.Context, flag *CancelFlag)

	// Stop ends listening and waits for in-flight work. Idempotent.
	Stop()
}

// Indicator reflects the speaking state, e.g. an avatar.
type Indicator interface {
	SetSpeaking(speaking bool)
}

// Option is a functional option for [New].
type Option func(*Coordinator)

// WithMonitor attaches an interruption monitor.
func WithMonitor(m Monitor) Option {
	return func(c *Coordinator) { c.monitor = m }
}

// WithIndicator attaches a speaking indicator.
func WithIndicator(i Indicator) Option {
	return func(c *Coordinator) { c.indicator = i }
}

// WithChunkSize sets the samples written per device call. Non-positive values
// are ignored.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithSpeakingHook registers fn to be called with true when playback starts
// and false when it ends.
func WithSpeakingHook(fn func(speaking bool)) Option {
	return func(c *Coordinator) { c.hook = fn }
}

// Coordinator plays one waveform at a time. It is safe for concurrent use;
// concurrent Play calls are serialised.
type Coordinator struct {
	sink      audio.Sink
	monitor   Monitor
	indicator Indicator
	hook      func(bool)
	chunkSize int

	mu       sync.Mutex
	flag     CancelFlag
	speaking atomic.Bool
}

// New creates a Coordinator writing to sink.
func New(sink audio.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{sink: sink, chunkSize: DefaultChunkSize}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speaking reports whether a waveform is currently being played.
func (c *Coordinator) Speaking() bool {
	return c.speaking.Load()
}

// Cancel raises the cancel flag of the current playback, if any.
func (c *Coordinator) Cancel() {
	c.flag.Set()
}

// Play plays req and reports whether it finished or was cancelled. Device and
// file errors abort playback and are returned; cleanup still runs.
func (c *Coordinator) Play(ctx context.Context, req Request) (outcome Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Path != "" && req.OwnsFile {
		defer func() {
			if rmErr := os.Remove(req.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("playback: failed to remove temporary audio", "path", req.Path, "err", rmErr)
			}
		}()
	}

	clip := req.Clip
	if req.Path != "" {
		if clip, err = audio.ReadWAVFile(req.Path); err != nil {
			return Finished, fmt.Errorf("playback: %w", err)
		}
	}
	if clip.IsEmpty() {
		return Finished, nil
	}

	c.flag.clear()
	c.begin(ctx)
	defer c.end()

	if err := c.sink.Open(clip.SampleRate); err != nil {
		return Finished, fmt.Errorf("playback: open device: %w", err)
	}
	defer func() {
		if cerr := c.sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("playback: close device: %w", cerr)
		}
	}()

	for off := 0; off < len(clip.Samples); off += c.chunkSize {
		if c.flag.IsSet() || ctx.Err() != nil {
			return Cancelled, nil
		}
		end := min(off+c.chunkSize, len(clip.Samples))
		if err := c.sink.Write(clip.Samples[off:end]); err != nil {
			return Finished, fmt.Errorf("playback: write: %w", err)
		}
	}
	// Every sample reached the device, so a flag raised during the last
	// chunk came too late to cut anything off.
	return Finished, nil
}

func (c *Coordinator) begin(ctx context.Context) {
	c.speaking.Store(true)
	if c.monitor != nil {
		c.monitor.Start(ctx, &c.flag)
	}
	if c.indicator != nil {
		c.indicator.SetSpeaking(true)
	}
	if c.hook != nil {
		c.hook(true)
	}
}

func (c *Coordinator) end() {
	if c.monitor != nil {
		c.monitor.Stop()
	}
	c.speaking.Store(false)
	if c.indicator != nil {
		c.indicator.SetSpeaking(false)
	}
	if c.hook != nil {
		c.hook(false)
	}
}
