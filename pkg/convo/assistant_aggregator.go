package convo

import (
	"context"
	"strings"

	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// AssistantAggregator buffers the assistant's streamed response text and
// commits it to the conversation only when the EndOfTurn frame for the
// response arrives. Because EndOfTurn travels in-band behind the synthesized
// audio, the commit happens after the response has actually been delivered.
// An interruption discards the buffer: a response the caller talked over is
// never recorded, not even the part already spoken.
type AssistantAggregator struct {
	convo *Conversation
	turns TurnController
	seq   frame.Sequencer

	buf   strings.Builder
	final string
}

// NewAssistantAggregator creates the assistant-side aggregator stage.
func NewAssistantAggregator(c *Conversation, turns TurnController) *AssistantAggregator {
	if turns == nil {
		turns = NopTurnController{}
	}
	return &AssistantAggregator{convo: c, turns: turns}
}

func (a *AssistantAggregator) Name() string { return "assistant_aggregator" }

func (a *AssistantAggregator) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f := f.(type) {
	case frame.TranscriptPartial:
		if f.Role == frame.RoleAssistant {
			a.buf.WriteString(f.Text)
			return nil
		}
		return emit(ctx, f)

	case frame.TranscriptFinal:
		if f.Role == frame.RoleAssistant {
			// The final carries the full response text and supersedes
			// whatever the partials accumulated.
			a.final = f.Text
			return nil
		}
		return emit(ctx, f)

	case frame.EndOfTurn:
		if f.Role != frame.RoleAssistant {
			return emit(ctx, f)
		}
		text := a.final
		if text == "" {
			text = a.buf.String()
		}
		a.reset()
		if text != "" {
			a.convo.Append(frame.RoleAssistant, text)
		}
		a.turns.TurnEnded()
		if text == "" {
			return nil
		}
		return emit(ctx, frame.NewContextUpdate(&a.seq, frame.RoleAssistant, text))

	case frame.Cancel:
		a.reset()
		return nil

	default:
		return emit(ctx, f)
	}
}

func (a *AssistantAggregator) reset() {
	a.buf.Reset()
	a.final = ""
}
