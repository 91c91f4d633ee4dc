package convo

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// UserAggregator appends finalized user transcripts to the conversation and
// emits a ContextUpdate to trigger the next response. If a response is
// still in flight when a new utterance finalizes (barge-in), the aggregator
// interrupts it first so the stale response is dropped before the new turn
// starts.
//
// Duplicate finals are not deduplicated by default: each one produces its
// own turn. WithDedupBySeq enables dropping re-deliveries of the same
// source frame.
type UserAggregator struct {
	convo *Conversation
	turns TurnController
	seq   frame.Sequencer

	dedup   bool
	lastSeq uint64
}

// UserAggregatorOption configures a UserAggregator.
type UserAggregatorOption func(*UserAggregator)

// WithDedupBySeq drops a TranscriptFinal whose sequence identifier is not
// greater than the last one aggregated.
func WithDedupBySeq() UserAggregatorOption {
	return func(a *UserAggregator) { a.dedup = true }
}

// NewUserAggregator creates the user-side aggregator stage.
func NewUserAggregator(c *Conversation, turns TurnController, opts ...UserAggregatorOption) *UserAggregator {
	if turns == nil {
		turns = NopTurnController{}
	}
	a := &UserAggregator{convo: c, turns: turns}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *UserAggregator) Name() string { return "user_aggregator" }

func (a *UserAggregator) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f := f.(type) {
	case frame.TranscriptFinal:
		if f.Role != frame.RoleUser {
			return emit(ctx, f)
		}
		if a.dedup && f.Seq() <= a.lastSeq {
			return nil
		}
		a.lastSeq = f.Seq()

		// Barge-in: cancel the stale response before committing the new
		// turn, so the emitted update carries the new generation. The
		// emission itself runs under the session context because the turn
		// context it arrived with was just cancelled.
		a.turns.Interrupt()

		a.convo.Append(frame.RoleUser, f.Text)
		a.turns.TurnStarted()
		return emit(pipeline.SessionContext(ctx), frame.NewContextUpdate(&a.seq, frame.RoleUser, f.Text))

	case frame.Cancel:
		return nil

	default:
		return emit(ctx, f)
	}
}
