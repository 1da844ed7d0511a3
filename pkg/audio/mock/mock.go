// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	sink := &mock.Sink{}
//	coordinator := playback.New(sink, ...)
//	_, _ = coordinator.Play(ctx, req)
//	written := sink.Samples()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chica/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Frames listed in
// Frames are delivered synchronously from Start, after which Start blocks
// until ctx is cancelled or Close is called.
type Source struct {
	mu sync.Mutex

	// Frames are pushed to the callback in order when Start is called.
	Frames []audio.Frame

	// StartErr is returned by Start before any frame is delivered.
	StartErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed chan struct{}
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context, onFrame func(audio.Frame)) error {
	s.mu.Lock()
	s.CallCountStart++
	if s.StartErr != nil {
		err := s.StartErr
		s.mu.Unlock()
		return err
	}
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	frames := append([]audio.Frame(nil), s.Frames...)
	closed := s.closed
	s.mu.Unlock()

	for _, f := range frames {
		onFrame(f)
	}

	select {
	case <-ctx.Done():
	case <-closed:
	}
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink]. It records every chunk
// written and optionally calls OnWrite after each chunk, which tests use to
// trigger cancellation mid-playback.
type Sink struct {
	mu sync.Mutex

	// OpenErr is returned by Open.
	OpenErr error

	// WriteErr is returned by Write.
	WriteErr error

	// OnWrite is invoked (outside the lock) after each successful Write with
	// the zero-based chunk index.
	OnWrite func(chunk int)

	// OpenedRates records the sample rate passed to each Open call.
	OpenedRates []int

	// Chunks records every chunk passed to Write, in order.
	Chunks [][]int16

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Open implements [audio.Sink].
func (s *Sink) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenedRates = append(s.OpenedRates, sampleRate)
	return s.OpenErr
}

// Write implements [audio.Sink].
func (s *Sink) Write(samples []int16) error {
	s.mu.Lock()
	if s.WriteErr != nil {
		err := s.WriteErr
		s.mu.Unlock()
		return err
	}
	s.Chunks = append(s.Chunks, append([]int16(nil), samples...))
	idx := len(s.Chunks) - 1
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(idx)
	}
	return nil
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// ChunkCount returns the number of chunks written so far.
func (s *Sink) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// Samples returns every sample written so far, concatenated.
func (s *Sink) Samples() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int16
	for _, c := range s.Chunks {
		out = append(out, c...)
	}
	return out
}

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
