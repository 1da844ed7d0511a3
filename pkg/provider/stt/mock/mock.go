// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts to the pipeline and to inspect
// which clips were sent for transcription.
//
// Example:
//
//	p := &mock.Provider{Transcript: stt.Transcript{Text: "olá chica"}}
//	t, _ := p.Transcribe(ctx, stt.Request{Audio: clip})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chica/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when Script is exhausted and
	// TranscribeFunc is nil.
	Transcript stt.Transcript

	// Script, if non-empty, is consumed one entry per call before falling
	// back to Transcript.
	Script []string

	// TranscribeFunc, if set, overrides all canned responses. It is called
	// without the mock's lock held.
	TranscribeFunc func(ctx context.Context, req stt.Request) (stt.Transcript, error)

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next canned transcript.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	fn := p.TranscribeFunc
	if fn == nil && p.TranscribeErr != nil {
		err := p.TranscribeErr
		p.mu.Unlock()
		return stt.Transcript{}, err
	}
	out := p.Transcript
	if len(p.Script) > 0 {
		out = stt.Transcript{Text: p.Script[0]}
		p.Script = p.Script[1:]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return out, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
