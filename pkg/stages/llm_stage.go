package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/chriscow/callpipe-go/pkg/ai/llm"
	"github.com/chriscow/callpipe-go/pkg/convo"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// LLMStage generates the assistant's response. Every ContextUpdate it
// receives triggers a completion over a fresh snapshot of the conversation;
// the response streams out as assistant transcript partials so synthesis can
// begin before generation finishes, followed by the final text and the
// assistant EndOfTurn that downstream stages use as the turn boundary.
//
// Generation runs under the turn context: an interruption cancels the
// provider stream mid-flight and the partial response is abandoned.
type LLMStage struct {
	provider llm.LLM
	convo    *convo.Conversation
	seq      frame.Sequencer

	maxTokens   int
	temperature float32
}

// NewLLMStage creates the response generation stage over a shared
// conversation.
func NewLLMStage(provider llm.LLM, c *convo.Conversation, maxTokens int, temperature float32) *LLMStage {
	return &LLMStage{provider: provider, convo: c, maxTokens: maxTokens, temperature: temperature}
}

func (s *LLMStage) Name() string { return "llm" }

func (s *LLMStage) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f := f.(type) {
	case frame.ContextUpdate:
		if err := emit(ctx, f); err != nil {
			return err
		}
		return s.generate(ctx, emit)

	case frame.Cancel:
		return nil

	default:
		return emit(ctx, f)
	}
}

func (s *LLMStage) generate(ctx context.Context, emit pipeline.EmitFunc) error {
	req := llm.ChatRequest{
		Messages:    messages(s.convo.Snapshot()),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	deltas, err := s.provider.ChatStream(ctx, req)
	if err != nil {
		return fmt.Errorf("llm: start stream: %w", err)
	}

	var full strings.Builder
	done := false
	for d := range deltas {
		if d.Err != nil {
			return fmt.Errorf("llm: stream: %w", d.Err)
		}
		if d.Content != "" {
			full.WriteString(d.Content)
			if err := emit(ctx, frame.NewTranscriptPartial(&s.seq, frame.RoleAssistant, d.Content)); err != nil {
				return err
			}
		}
		if d.Done {
			done = true
		}
	}
	if !done {
		// The provider closed the stream early, which happens when the turn
		// was cancelled under us.
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("llm: stream ended without completion")
	}

	if err := emit(ctx, frame.NewTranscriptFinal(&s.seq, frame.RoleAssistant, full.String())); err != nil {
		return err
	}
	return emit(ctx, frame.NewEndOfTurn(&s.seq, frame.RoleAssistant))
}

func messages(turns []convo.Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: llm.Role(t.Role), Content: t.Content}
	}
	return out
}
