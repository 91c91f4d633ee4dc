// Package convo holds the conversation context shared by the language-model
// stage and the two role-scoped aggregator stages. The user aggregator
// appends finalized user utterances; the assistant aggregator appends
// completed assistant responses. The two write disjoint roles, and only
// fully completed turns are ever recorded.
package convo

import (
	"sync"

	"github.com/chriscow/callpipe-go/pkg/frame"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role    frame.Role
	Content string
}

// Conversation is the ordered history for one session. It is shared by
// reference with the language-model stage; appends and snapshots are
// serialized internally so a snapshot never observes a torn append.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// New creates a conversation, optionally seeded with initial turns (for
// example a system directive).
func New(seed ...Turn) *Conversation {
	c := &Conversation{}
	c.turns = append(c.turns, seed...)
	return c
}

// Append records a completed turn.
func (c *Conversation) Append(role frame.Role, content string) {
	c.mu.Lock()
	c.turns = append(c.turns, Turn{Role: role, Content: content})
	c.mu.Unlock()
}

// Snapshot returns a copy of the history for a model request.
func (c *Conversation) Snapshot() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of recorded turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// TurnController is implemented by the session controller. Aggregators use
// it to mark response-turn boundaries and to interrupt an in-flight
// response when the caller barges in.
type TurnController interface {
	// TurnStarted marks that a response turn is now in flight.
	TurnStarted()

	// TurnEnded marks that the in-flight response completed in full.
	TurnEnded()

	// Interrupt cancels the in-flight response turn, if any, and reports
	// whether there was one to cancel.
	Interrupt() bool
}

// NopTurnController ignores all turn notifications. Useful for tests and
// for pipelines that run without a session controller.
type NopTurnController struct{}

func (NopTurnController) TurnStarted()    {}
func (NopTurnController) TurnEnded()      {}
func (NopTurnController) Interrupt() bool { return false }
