// Package pipeline implements the frame-pipeline engine: an ordered chain of
// processing stages connected by bounded queues. Frames move stage-to-stage
// in FIFO order; emission blocks when the downstream queue is full, which is
// the backpressure contract. Cancellation travels out-of-band so it can
// overtake buffered audio during an interruption.
package pipeline

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/frame"
)

// EmitFunc sends a frame downstream. It blocks while the downstream queue is
// full and returns the context error if the turn or pipeline is cancelled
// while waiting. Safe for concurrent use.
type EmitFunc func(ctx context.Context, f frame.Frame) error

// Stage is a single processing unit with one upstream input and one
// downstream output. A stage transforms, filters, or enriches frames: for
// each input frame, Process emits zero or more output frames via emit.
//
// The context passed to Process is scoped to the current turn; it is
// cancelled on interruption, and a stage awaiting an external call must
// honor that cancellation rather than block. A Cancel frame is delivered to
// every stage out-of-band: on receipt a stage must drop all buffered work
// for the current turn. Stages are constructed once per session and own no
// cross-session state.
type Stage interface {
	Name() string
	Process(ctx context.Context, f frame.Frame, emit EmitFunc) error
}

// Lifecycle is implemented by stages that own per-session resources or
// produce frames on their own (source stages such as the transport input,
// or stages holding a provider stream open across turns).
//
// OnStart is called when the pipeline starts, with a context that lives for
// the whole session and an emitter bound to the stage's output. OnStop is
// called exactly once during shutdown, in reverse stage order.
type Lifecycle interface {
	OnStart(ctx context.Context, emit EmitFunc) error
	OnStop() error
}

// discardEmit is used when delivering out-of-band control frames; stage
// resets must not inject new frames into the flow.
func discardEmit(context.Context, frame.Frame) error { return nil }

type sessionCtxKey struct{}

// SessionContext returns the session-scoped context underlying a turn
// context. A stage whose emission begins a new turn (the user aggregator
// committing a barge-in utterance right after interrupting the previous
// response) emits under the session context so the emission is not
// aborted by the turn cancellation it just triggered.
func SessionContext(ctx context.Context) context.Context {
	if s, ok := ctx.Value(sessionCtxKey{}).(context.Context); ok {
		return s
	}
	return ctx
}
