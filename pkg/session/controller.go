// Package session ties one phone call together: it assembles the pipeline
// for a connection, owns the task running it, and tracks the call through
// its lifecycle states. The controller is both the transport's connection
// handler and the aggregators' turn controller.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"

	"github.com/chriscow/callpipe-go/pkg/convo"
)

// State of a call session.
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateActive
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultDrainTimeout bounds how long Close waits for the pipeline to
// drain before giving up.
const DefaultDrainTimeout = 3 * time.Second

// escalationThreshold is how many consecutive recoverable stage errors
// trigger the escalation hook.
const escalationThreshold = 3

// Controller drives one session through its lifecycle. It reacts to
// connection events from the transport, to turn boundaries from the
// aggregators, and to stage errors from the pipeline's observer tap.
type Controller struct {
	logger *slog.Logger

	task     *pipeline.Task
	conv     *convo.Conversation
	greeting string

	drainTimeout time.Duration

	// Escalate is invoked when a stage keeps failing recoverably and the
	// call likely needs a human. Optional.
	Escalate func(reason string)

	state      atomic.Int32
	turnActive atomic.Bool
	closeOnce  sync.Once

	errMu      sync.Mutex
	consecErrs int
}

func newController(greeting string, drainTimeout time.Duration, logger *slog.Logger) *Controller {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{greeting: greeting, drainTimeout: drainTimeout, logger: logger}
}

func (c *Controller) bind(task *pipeline.Task, conv *convo.Conversation) {
	c.task = task
	c.conv = conv
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("session state changed",
			slog.String("from", old.String()),
			slog.String("to", s.String()))
	}
}

// OnClientConnected marks the session active and starts the conversation:
// the greeting directive is committed to the context and a ContextUpdate is
// queued so the assistant speaks first.
func (c *Controller) OnClientConnected(streamSID string) {
	c.setState(StateActive)
	c.logger.Info("client connected", slog.String("stream_sid", streamSID))

	if c.greeting == "" {
		return
	}
	c.conv.Append(frame.RoleSystem, c.greeting)
	c.TurnStarted()
	update := frame.NewContextUpdate(c.task.Sequencer(), frame.RoleSystem, c.greeting)
	if err := c.task.Queue(context.Background(), update); err != nil {
		c.logger.Warn("failed to queue greeting", slog.String("error", err.Error()))
	}
}

// OnClientDisconnected ends the session. It runs on the transport's read
// loop, and shutdown waits for that loop to exit, so the teardown happens
// off this goroutine.
func (c *Controller) OnClientDisconnected(reason string) {
	c.logger.Info("client disconnected", slog.String("reason", reason))
	go c.Close()
}

// TurnStarted marks a response turn in flight.
func (c *Controller) TurnStarted() { c.turnActive.Store(true) }

// TurnEnded marks the in-flight response completed.
func (c *Controller) TurnEnded() { c.turnActive.Store(false) }

// Interrupt cancels the in-flight response turn, if any.
func (c *Controller) Interrupt() bool {
	if !c.turnActive.Swap(false) {
		return false
	}
	c.logger.Debug("interrupting response turn")
	c.task.CancelTurn()
	return true
}

// OnFrame watches the observer tap for stage errors. Repeated recoverable
// failures trip the escalation hook; everything else is already handled by
// the pipeline itself.
func (c *Controller) OnFrame(stage string, f frame.Frame) {
	ef, ok := f.(frame.Error)
	if !ok {
		c.errMu.Lock()
		c.consecErrs = 0
		c.errMu.Unlock()
		return
	}
	if ef.Fatal {
		return
	}

	c.errMu.Lock()
	c.consecErrs++
	n := c.consecErrs
	c.errMu.Unlock()

	if n == escalationThreshold && c.Escalate != nil {
		c.logger.Warn("escalating after repeated stage failures",
			slog.String("stage", stage),
			slog.Int("consecutive", n))
		c.Escalate(stage)
	}
}

// Close tears the session down: it interrupts any in-flight turn, cancels
// the task, and waits a bounded time for the pipeline to drain. Safe to
// call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateDisconnecting)
		c.task.CancelTurn()
		c.task.Cancel()

		select {
		case <-c.task.Done():
		case <-time.After(c.drainTimeout):
			c.logger.Warn("session drain timed out",
				slog.Duration("timeout", c.drainTimeout))
		}
		c.setState(StateClosed)
	})
}
