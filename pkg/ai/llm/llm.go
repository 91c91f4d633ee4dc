// Package llm defines the language-model provider contract. The pipeline's
// language-model stage streams token deltas so synthesis can start before
// the full response is generated.
package llm

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/ai"
)

var (
	// ErrRecoverable indicates a temporary LLM failure: rate limiting,
	// transient service error, timeout.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent LLM failure: invalid API key,
	// unsupported model, content policy violation.
	ErrFatal = ai.ErrFatal
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest contains parameters for a completion request.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// ChatResponse is the full completion for non-streaming use.
type ChatResponse struct {
	Message      Message
	TokensUsed   int
	FinishReason string
}

// Delta is one chunk of a streamed completion. A Delta with Err set
// terminates the stream; the channel is closed after the last delta.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Capabilities describes what an LLM provider supports.
type Capabilities struct {
	Streaming bool
	MaxTokens int
}

// LLM is the language-model provider contract.
type LLM interface {
	// Chat performs a blocking completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// ChatStream starts a streamed completion. The returned channel yields
	// content deltas and is closed after a Delta with Done or Err set.
	// Cancelling ctx abandons the stream.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error)

	Capabilities() Capabilities
}
