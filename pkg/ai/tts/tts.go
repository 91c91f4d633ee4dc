// Package tts defines the text-to-speech provider contract.
package tts

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

var (
	// ErrRecoverable indicates a temporary TTS failure: service overload,
	// temporary quota exhaustion, network issues.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent TTS failure: invalid voice, permanent
	// quota exhaustion, authentication failure.
	ErrFatal = ai.ErrFatal
)

// SynthesizeRequest contains parameters for one synthesis call.
type SynthesizeRequest struct {
	Text       string
	Voice      string
	SampleRate int
}

// Capabilities describes what a TTS provider supports.
type Capabilities struct {
	Streaming   bool
	Voices      []string
	SampleRates []int
}

// TTS converts text to audio.
type TTS interface {
	// Synthesize converts text to PCM chunks. The returned channel is
	// closed when synthesis completes; cancelling ctx abandons synthesis
	// and closes the channel early.
	Synthesize(ctx context.Context, req SynthesizeRequest) (<-chan audio.PCM, error)

	Capabilities() Capabilities
}
