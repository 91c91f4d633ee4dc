package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chriscow/callpipe-go/pkg/frame"
)

// Task owns one pipeline instance for the lifetime of one call. It injects
// control frames, exposes turn cancellation, and coordinates shutdown:
// Cancel is idempotent and Done is closed once the pipeline has drained.
type Task struct {
	ID string

	pipeline *Pipeline
	logger   *slog.Logger
	seq      frame.Sequencer

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// NewTask wraps a pipeline in a task with a fresh call identifier.
func NewTask(p *Pipeline, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Task{
		ID:       id,
		pipeline: p,
		logger:   logger.With(slog.String("task_id", id)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the pipeline, seeding it with a Start frame, and blocks until
// the session ends. It returns nil on clean cancellation and the failure
// error when a fatal stage error halted the pipeline.
func (t *Task) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	t.logger.Info("task starting")
	err := t.pipeline.Run(runCtx, frame.NewStart(&t.seq))

	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)

	if err != nil {
		t.logger.Error("task finished with error", slog.String("error", err.Error()))
	} else {
		t.logger.Info("task finished")
	}
	return err
}

// Queue injects frames at the head of the pipeline.
func (t *Task) Queue(ctx context.Context, frames ...frame.Frame) error {
	return t.pipeline.Queue(ctx, frames...)
}

// Sequencer returns the task's originating stream for building injected
// frames.
func (t *Task) Sequencer() *frame.Sequencer { return &t.seq }

// CancelTurn interrupts the in-flight turn without ending the session.
func (t *Task) CancelTurn() {
	t.logger.Debug("turn cancelled")
	t.pipeline.CancelTurn()
}

// Cancel ends the session. Safe to call more than once; the second call is
// a no-op.
func (t *Task) Cancel() {
	t.stopOnce.Do(func() {
		t.logger.Info("task cancelled")
		close(t.stop)
	})
}

// Done is closed once Run has returned and all stage resources are
// released.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the terminal pipeline error, if any. Valid after Done.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
