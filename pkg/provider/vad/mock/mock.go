// Package mock provides a test double for the [vad.Detector] interface.
//
// Example:
//
//	det := &mock.Detector{Result: true}
//	ok, _ := det.IsSpeech(frame, 16000)
//	// det.CallCount() == 1
package mock

import (
	"sync"

	"github.com/MrWong99/chica/pkg/provider/vad"
)

// Detector is a mock implementation of [vad.Detector].
type Detector struct {
	mu sync.Mutex

	// Result is returned by IsSpeech when ResultFunc is nil.
	Result bool

	// ResultFunc, if set, computes the result from the frame.
	ResultFunc func(frame []int16) bool

	// Err, if non-nil, is returned by IsSpeech.
	Err error

	// CloseErr is returned by Close.
	CloseErr error

	calls  int
	closed int
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(frame []int16, _ int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return false, d.Err
	}
	if d.ResultFunc != nil {
		return d.ResultFunc(frame), nil
	}
	return d.Result, nil
}

// Close implements [vad.Detector].
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return d.CloseErr
}

// CallCount returns how many times IsSpeech was called.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// CloseCalls returns how many times Close was called.
func (d *Detector) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

var _ vad.Detector = (*Detector)(nil)
