// Package fake provides a deterministic STT implementation for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

const (
	// interimChunkInterval controls how often interim results are emitted.
	interimChunkInterval = 5
	// DefaultTranscript is used when no transcript is provided.
	DefaultTranscript = "this is a fake transcript"
)

// STT returns the configured transcript as the final result of every stream.
type STT struct {
	mu          sync.Mutex
	transcripts []string
	next        int
}

// New creates a fake STT provider. Each opened stream finalizes with the
// next transcript in order; the last one repeats.
func New(transcripts ...string) *STT {
	if len(transcripts) == 0 {
		transcripts = []string{DefaultTranscript}
	}
	return &STT{transcripts: transcripts}
}

func (f *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	f.mu.Lock()
	transcript := f.transcripts[f.next]
	if f.next < len(f.transcripts)-1 {
		f.next++
	}
	f.mu.Unlock()

	return &Stream{
		transcript: transcript,
		events:     make(chan stt.Event, 16),
		ctx:        ctx,
	}, nil
}

func (f *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:      true,
		InterimResults: true,
		SampleRates:    []int{8000, 16000, 48000},
	}
}

// Stream is a fake transcription session. It counts pushed chunks, emits an
// interim result every few chunks, and finalizes on CloseSend.
type Stream struct {
	transcript string
	events     chan stt.Event
	ctx        context.Context

	mu     sync.Mutex
	chunks int
	closed bool
}

func (s *Stream) Push(chunk audio.PCM) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("fake stt: stream is closed")
	}

	s.chunks++
	if s.chunks%interimChunkInterval != 0 {
		return nil
	}

	n := len(s.transcript) * s.chunks / (s.chunks + interimChunkInterval)
	ev := stt.Event{Type: stt.EventInterim, Text: s.transcript[:n]}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		// interim results are best-effort
	}
	return nil
}

func (s *Stream) Events() <-chan stt.Event { return s.events }

func (s *Stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	select {
	case s.events <- stt.Event{Type: stt.EventFinal, Text: s.transcript}:
	case <-s.ctx.Done():
		close(s.events)
		return s.ctx.Err()
	}
	close(s.events)
	return nil
}
