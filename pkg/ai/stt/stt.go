// Package stt defines the streaming speech-to-text provider contract. A
// stream accepts pushed audio chunks and emits interim and final transcript
// events; the pipeline's speech stage adapts these events into transcript
// frames.
package stt

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

var (
	// ErrRecoverable indicates a temporary STT failure: network timeout,
	// service unavailable, rate limiting.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent STT failure: invalid audio format,
	// unsupported language, authentication failure.
	ErrFatal = ai.ErrFatal
)

// StreamConfig configures one transcription stream.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Language    string
}

// EventType classifies a speech recognition event.
type EventType int

const (
	// EventInterim is a partial result that may still change.
	EventInterim EventType = iota
	// EventFinal is a finalized result that will not change.
	EventFinal
	// EventError reports a recognition failure.
	EventError
)

// Event is one speech recognition result or error.
type Event struct {
	Type EventType
	Text string
	Err  error // set only for EventError
}

// Capabilities describes what an STT provider supports.
type Capabilities struct {
	Streaming      bool
	InterimResults bool
	SampleRates    []int
}

// STT creates transcription streams.
type STT interface {
	// NewStream opens a streaming transcription session. The stream lives
	// until CloseSend; ctx cancellation abandons any in-flight work.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)

	Capabilities() Capabilities
}

// Stream is an active transcription session.
type Stream interface {
	// Push submits an audio chunk for recognition.
	Push(chunk audio.PCM) error

	// Events returns recognition events. The channel is closed after
	// CloseSend has flushed the final result, or when the stream's context
	// is cancelled.
	Events() <-chan Event

	// CloseSend signals end of utterance: no more audio will be pushed and
	// pending data is flushed into a final result.
	CloseSend() error
}
