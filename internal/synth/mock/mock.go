// Package mock provides a deterministic synth.Synthesizer for tests and
// local development without an external speech API.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nadzzz/voxgate/internal/synth"
)

// Synthesizer returns fabricated audio bytes derived from the input, or a
// configured error.
type Synthesizer struct {
	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeFunc, when non-nil, replaces the default behavior.
	SynthesizeFunc func(ctx context.Context, text, voice string) (*synth.Result, error)

	calls atomic.Int64
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

// New creates a mock synthesizer.
func New() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize returns deterministic bytes for the given text and voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (*synth.Result, error) {
	s.calls.Add(1)

	if s.SynthesizeFunc != nil {
		return s.SynthesizeFunc(ctx, text, voice)
	}
	if s.Err != nil {
		return nil, s.Err
	}

	return &synth.Result{
		Audio:       []byte(fmt.Sprintf("mock-audio:%s:%s", voice, text)),
		ContentType: "audio/mpeg",
	}, nil
}

// Calls returns the number of Synthesize invocations.
func (s *Synthesizer) Calls() int64 { return s.calls.Load() }

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
