// Package frame defines the atomic unit of data flowing through a call
// pipeline: audio chunks, transcripts, conversation-context updates, and
// control signals. Frames are immutable once emitted; a stage that needs to
// modify content must emit a new frame.
package frame

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Kind identifies the variant of a Frame.
type Kind int

const (
	KindAudio Kind = iota
	KindTranscriptPartial
	KindTranscriptFinal
	KindContextUpdate
	KindStart
	KindCancel
	KindEndOfTurn
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindTranscriptPartial:
		return "transcript_partial"
	case KindTranscriptFinal:
		return "transcript_final"
	case KindContextUpdate:
		return "context_update"
	case KindStart:
		return "start"
	case KindCancel:
		return "cancel"
	case KindEndOfTurn:
		return "end_of_turn"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Role identifies who a transcript or context turn belongs to.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Frame is a single unit of pipeline data. Every frame carries a sequence
// identifier issued by its originating stream's Sequencer; identifiers are
// strictly increasing within one stream and are used to verify ordering
// across stage boundaries.
type Frame interface {
	Kind() Kind
	Seq() uint64
}

// Sequencer issues strictly increasing sequence identifiers for one
// originating stream. The zero value is ready to use and safe for
// concurrent callers.
type Sequencer struct {
	n atomic.Uint64
}

// Next returns the next sequence identifier. Identifiers start at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

type meta struct {
	seq uint64
}

func (m meta) Seq() uint64 { return m.seq }

// Audio carries a chunk of 16-bit little-endian PCM audio.
type Audio struct {
	meta
	Data        []byte
	SampleRate  int
	NumChannels int
}

// NewAudio creates an Audio frame. The data slice is owned by the frame
// after creation and must not be mutated by the caller.
func NewAudio(sq *Sequencer, data []byte, sampleRate, numChannels int) Audio {
	return Audio{meta: meta{seq: sq.Next()}, Data: data, SampleRate: sampleRate, NumChannels: numChannels}
}

func (Audio) Kind() Kind { return KindAudio }

// Duration returns the playback duration of the audio in this frame.
func (a Audio) Duration() time.Duration {
	if a.SampleRate == 0 || a.NumChannels == 0 {
		return 0
	}
	samples := len(a.Data) / (2 * a.NumChannels)
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}

// TranscriptPartial carries an interim transcription that may still change.
// Role is RoleUser for speech-to-text output and RoleAssistant for the
// language model's token stream.
type TranscriptPartial struct {
	meta
	Role Role
	Text string
}

func NewTranscriptPartial(sq *Sequencer, role Role, text string) TranscriptPartial {
	return TranscriptPartial{meta: meta{seq: sq.Next()}, Role: role, Text: text}
}

func (TranscriptPartial) Kind() Kind { return KindTranscriptPartial }

// TranscriptFinal carries a finalized transcription that will not change.
type TranscriptFinal struct {
	meta
	Role Role
	Text string
}

func NewTranscriptFinal(sq *Sequencer, role Role, text string) TranscriptFinal {
	return TranscriptFinal{meta: meta{seq: sq.Next()}, Role: role, Text: text}
}

func (TranscriptFinal) Kind() Kind { return KindTranscriptFinal }

// ContextUpdate records that a turn was appended to the conversation
// context. The language-model stage treats any ContextUpdate as a trigger
// to generate the next response.
type ContextUpdate struct {
	meta
	Role    Role
	Content string
}

func NewContextUpdate(sq *Sequencer, role Role, content string) ContextUpdate {
	return ContextUpdate{meta: meta{seq: sq.Next()}, Role: role, Content: content}
}

func (ContextUpdate) Kind() Kind { return KindContextUpdate }

// Start signals pipeline startup. It is seeded at the head when the task
// runs so stages can initialize per-session resources.
type Start struct {
	meta
}

func NewStart(sq *Sequencer) Start { return Start{meta: meta{seq: sq.Next()}} }

func (Start) Kind() Kind { return KindStart }

// Cancel is a hard interrupt. It is delivered out-of-band by the pipeline
// so it can overtake buffered audio; stages must drop all buffered and
// in-flight work for the current turn on receipt.
type Cancel struct {
	meta
}

func NewCancel(sq *Sequencer) Cancel { return Cancel{meta: meta{seq: sq.Next()}} }

func (Cancel) Kind() Kind { return KindCancel }

// EndOfTurn marks a turn boundary. With RoleUser it is the voice-activity
// end-of-utterance signal from the transport; with RoleAssistant it travels
// in-band behind the synthesized audio so downstream stages observe it only
// after the full response has been delivered.
type EndOfTurn struct {
	meta
	Role Role
}

func NewEndOfTurn(sq *Sequencer, role Role) EndOfTurn {
	return EndOfTurn{meta: meta{seq: sq.Next()}, Role: role}
}

func (EndOfTurn) Kind() Kind { return KindEndOfTurn }

// Error reports a stage failure. Fatal errors trigger pipeline-wide
// cancellation; recoverable ones are reported to the observer and the flow
// continues.
type Error struct {
	meta
	Stage string
	Err   error
	Fatal bool
}

func NewError(sq *Sequencer, stage string, err error, fatal bool) Error {
	return Error{meta: meta{seq: sq.Next()}, Stage: stage, Err: err, Fatal: fatal}
}

func (Error) Kind() Kind { return KindError }
