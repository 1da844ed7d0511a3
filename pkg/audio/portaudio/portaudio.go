// Package portaudio implements [audio.Source] and [audio.Sink] on top of the
// PortAudio host library.
//
// Device names are resolved with [audio.SelectDevice]. A name that matches no
// device never fails: the host default device is used and a warning is logged.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/chica/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)

// deviceHost is the slice of the PortAudio API used for device selection.
type deviceHost struct {
	devices       func() ([]*pa.DeviceInfo, error)
	defaultInput  func() (*pa.DeviceInfo, error)
	defaultOutput func() (*pa.DeviceInfo, error)
}

var host = deviceHost{
	devices:       pa.Devices,
	defaultInput:  pa.DefaultInputDevice,
	defaultOutput: pa.DefaultOutputDevice,
}

// resolveDevice maps a configured device name to a PortAudio device, falling
// back to the host default.
func resolveDevice(name string, input bool) (*pa.DeviceInfo, error) {
	return host.resolve(name, input)
}

func (h deviceHost) resolve(name string, input bool) (*pa.DeviceInfo, error) {
	devices, err := h.devices()
	if err != nil {
		slog.Warn("portaudio: cannot list devices, using system default", "requested", name, "input", input, "err", err)
		return h.fallback(input)
	}

	infos := make([]audio.DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = audio.DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
	}

	if match, ok := audio.SelectDevice(name, infos, input); ok {
		for _, d := range devices {
			if d.Name == match.Name {
				slog.Info("portaudio: using device", "name", d.Name, "input", input)
				return d, nil
			}
		}
	}

	if name != "" {
		slog.Warn("portaudio: device not found, using system default", "requested", name, "input", input)
	}
	return h.fallback(input)
}

func (h deviceHost) fallback(input bool) (*pa.DeviceInfo, error) {
	if input {
		return h.defaultInput()
	}
	return h.defaultOutput()
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source captures mono 16-bit frames from an input device.
type Source struct {
	device     string
	sampleRate int
	frameSize  int

	mu       sync.Mutex
	stream   *pa.Stream
	closeErr error
	once     sync.Once
	done     chan struct{}
}

// NewSource initialises PortAudio and returns a capture source. device is the
// configured device name ("" or "default" for the host default).
func NewSource(device string, sampleRate, frameSize int) (*Source, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, errors.New("portaudio: sample rate and frame size must be positive")
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Source{
		device:     device,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		done:       make(chan struct{}),
	}, nil
}

// Start implements [audio.Source]. The PortAudio callback copies each buffer
// into a fresh [audio.Frame] before handing it to onFrame.
func (s *Source) Start(ctx context.Context, onFrame func(audio.Frame)) error {
	dev, err := resolveDevice(s.device, true)
	if err != nil {
		return err
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = s.frameSize

	var captured int64
	stream, err := pa.OpenStream(params, func(in []int16) {
		samples := make([]int16, len(in))
		copy(samples, in)
		ts := time.Duration(captured * int64(time.Second) / int64(s.sampleRate))
		captured += int64(len(in))
		onFrame(audio.Frame{Samples: samples, SampleRate: s.sampleRate, Timestamp: ts})
	})
	if err != nil {
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return s.Close()
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		if stream != nil {
			if err := stream.Stop(); err != nil {
				s.closeErr = fmt.Errorf("portaudio: stop input stream: %w", err)
			}
			if err := stream.Close(); err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("portaudio: close input stream: %w", err)
			}
		}
		if err := pa.Terminate(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return s.closeErr
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink plays mono 16-bit audio through an output device using blocking
// writes of a fixed chunk size. Shorter chunks are zero-padded.
type Sink struct {
	device    string
	chunkSize int

	mu     sync.Mutex
	stream *pa.Stream
	buf    []int16
}

// NewSink initialises PortAudio and returns a playback sink writing chunks of
// chunkSize samples.
func NewSink(device string, chunkSize int) (*Sink, error) {
	if chunkSize <= 0 {
		return nil, errors.New("portaudio: chunk size must be positive")
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Sink{device: device, chunkSize: chunkSize}, nil
}

// Open implements [audio.Sink].
func (s *Sink) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return errors.New("portaudio: sink already open")
	}

	dev, err := resolveDevice(s.device, false)
	if err != nil {
		return err
	}

	params := pa.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = s.chunkSize

	s.buf = make([]int16, s.chunkSize)
	stream, err := pa.OpenStream(params, s.buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Write implements [audio.Sink]. Chunks longer than the configured chunk
// size are written in several blocking calls.
func (s *Sink) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return errors.New("portaudio: sink not open")
	}
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close implements [audio.Sink]. The PortAudio library stays initialised
// until [Sink.Terminate] so the sink can be reopened for the next waveform.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close output stream: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio reference taken by [NewSink].
func (s *Sink) Terminate() error {
	if err := s.Close(); err != nil {
		slog.Warn("portaudio: close sink", "err", err)
	}
	return pa.Terminate()
}
