// Package vad defines the voice-activity detection contract. The transport
// uses VAD events to mark end of utterance and to trigger barge-in when the
// caller starts speaking over the assistant.
package vad

import (
	"context"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType classifies a voice-activity event.
type EventType int

const (
	EventSpeechStart EventType = iota
	EventSpeechEnd
	EventError
)

// Event is one voice-activity boundary.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Err       error
}

// Capabilities describes what a VAD provider supports.
type Capabilities struct {
	SampleRates        []int
	MinSpeechDuration  time.Duration
	MinSilenceDuration time.Duration
}

// VAD detects speech boundaries in an audio stream.
type VAD interface {
	// Detect consumes audio chunks and emits speech boundary events. The
	// returned channel is closed when the input channel closes or ctx is
	// cancelled.
	Detect(ctx context.Context, chunks <-chan audio.PCM) (<-chan Event, error)

	Capabilities() Capabilities
}
