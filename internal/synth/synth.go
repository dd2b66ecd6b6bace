// Package synth defines the interface for speech synthesis backends.
//
// The admission controller and queue drainer treat synthesis as an opaque
// external operation: text and a voice name in, encoded audio out. Latency
// is unbounded but expected in the low-single-digit-seconds range, and every
// call consumes one unit of the global budget whether it succeeds or not.
package synth

import "context"

// Result holds the output of one synthesis call.
type Result struct {
	// Audio is the encoded audio returned by the backend.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/mpeg",
	// "audio/wav"), propagated verbatim to the HTTP response.
	ContentType string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates audio for the given text and voice.
	Synthesize(ctx context.Context, text, voice string) (*Result, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}
