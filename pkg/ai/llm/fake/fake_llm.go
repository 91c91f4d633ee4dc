// Package fake provides a deterministic LLM implementation for tests.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai/llm"
)

// DefaultResponse is used when no responses are configured.
const DefaultResponse = "This is a fake response."

// LLM replies with the configured responses in order; the last one repeats.
type LLM struct {
	mu        sync.Mutex
	responses []string
	next      int

	// DelayPerDelta slows streamed deltas so tests can cancel mid-stream.
	DelayPerDelta time.Duration

	abandoned int
	completed int
}

// New creates a fake LLM provider.
func New(responses ...string) *LLM {
	if len(responses) == 0 {
		responses = []string{DefaultResponse}
	}
	return &LLM{responses: responses}
}

// Abandoned reports how many streams were cancelled before completing.
func (f *LLM) Abandoned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandoned
}

// Completed reports how many streams ran to completion.
func (f *LLM) Completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *LLM) nextResponse() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.responses[f.next]
	if f.next < len(f.responses)-1 {
		f.next++
	}
	return r
}

func (f *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: f.nextResponse()},
		FinishReason: "stop",
	}, nil
}

// ChatStream yields the next response one word at a time.
func (f *LLM) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	response := f.nextResponse()
	out := make(chan llm.Delta, 4)

	go func() {
		defer close(out)
		words := strings.SplitAfter(response, " ")
		for _, w := range words {
			if f.DelayPerDelta > 0 {
				select {
				case <-time.After(f.DelayPerDelta):
				case <-ctx.Done():
					f.markAbandoned()
					return
				}
			}
			select {
			case out <- llm.Delta{Content: w}:
			case <-ctx.Done():
				f.markAbandoned()
				return
			}
		}
		select {
		case out <- llm.Delta{Done: true}:
			f.markCompleted()
		case <-ctx.Done():
			f.markAbandoned()
		}
	}()

	return out, nil
}

func (f *LLM) markAbandoned() {
	f.mu.Lock()
	f.abandoned++
	f.mu.Unlock()
}

func (f *LLM) markCompleted() {
	f.mu.Lock()
	f.completed++
	f.mu.Unlock()
}

func (f *LLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, MaxTokens: 4096}
}
