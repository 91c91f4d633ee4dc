package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/frame"
)

// DefaultBufferDepth is the per-link queue capacity when Params leaves it
// unset. A full queue suspends the upstream emitter.
const DefaultBufferDepth = 16

// Params configures a pipeline instance.
type Params struct {
	// BufferDepth is the capacity of each stage-to-stage queue.
	BufferDepth int

	// ObserverDepth is the capacity of each observer tap queue. A full tap
	// drops the tap copy, never the main flow.
	ObserverDepth int
}

// item wraps a frame with the turn generation it was emitted under. Items
// from a cancelled generation are dropped on receipt, which is how a Cancel
// overtakes frames already sitting in bounded queues.
type item struct {
	f   frame.Frame
	gen uint64
}

// Pipeline is an ordered composition of stages owning the flow of frames
// end-to-end. It owns the lifetime of all its stages: they start when Run
// starts and are stopped exactly once when Run returns.
type Pipeline struct {
	stages []Stage
	params Params
	logger *slog.Logger

	links []chan item        // links[i] feeds stages[i]; stages[i] emits into links[i+1]
	ctrl  []chan frame.Frame // out-of-band control path, one per stage

	seq frame.Sequencer // originating stream for engine control/error frames
	gen atomic.Uint64

	taps []*tap

	mu         sync.Mutex
	running    bool
	runCtx     context.Context
	runCancel  context.CancelFunc
	turnCtx    context.Context
	turnCancel context.CancelFunc
	failure    error
}

// New creates a pipeline from an ordered stage list. Frames flow through
// the stages in the given order.
func New(stages []Stage, params Params, logger *slog.Logger, observers ...Observer) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline: at least one stage is required")
	}
	if params.BufferDepth <= 0 {
		params.BufferDepth = DefaultBufferDepth
	}
	if params.ObserverDepth <= 0 {
		params.ObserverDepth = defaultObserverDepth
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		stages: stages,
		params: params,
		logger: logger,
		links:  make([]chan item, len(stages)+1),
		ctrl:   make([]chan frame.Frame, len(stages)),
	}
	for i := range p.links {
		p.links[i] = make(chan item, params.BufferDepth)
	}
	for i := range p.ctrl {
		p.ctrl[i] = make(chan frame.Frame, 1)
	}
	for _, obs := range observers {
		p.taps = append(p.taps, newTap(obs, params.ObserverDepth))
	}
	return p, nil
}

// Run starts all stages, seeds the head with the initial frames, and blocks
// until ctx is cancelled or a fatal stage error occurs. Stage resources are
// released exactly once before Run returns.
func (p *Pipeline) Run(ctx context.Context, initial ...frame.Frame) error {
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	runCtx = context.WithValue(runCtx, sessionCtxKey{}, runCtx)

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: already running")
	}
	p.running = true
	p.runCtx = runCtx
	p.runCancel = runCancel
	p.turnCtx, p.turnCancel = context.WithCancel(runCtx)
	p.mu.Unlock()

	for _, t := range p.taps {
		t.start()
	}

	// Start source stages and per-session resources, head to tail.
	started := 0
	var startErr error
	for i, st := range p.stages {
		lc, ok := st.(Lifecycle)
		if !ok {
			started = i + 1
			continue
		}
		if err := lc.OnStart(runCtx, p.emitter(i)); err != nil {
			startErr = fmt.Errorf("pipeline: start stage %s: %w", st.Name(), err)
			break
		}
		started = i + 1
	}
	if startErr != nil {
		p.stopStages(started)
		p.closeTaps()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return startErr
	}

	g, gctx := errgroup.WithContext(runCtx)
	for i := range p.stages {
		i := i
		g.Go(func() error { return p.runStage(gctx, i) })
	}
	// Tail drain: the last link has no consumer stage.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-p.links[len(p.stages)]:
			}
		}
	})

	if err := p.Queue(runCtx, initial...); err != nil {
		runCancel()
	}

	err := g.Wait()

	p.stopStages(len(p.stages))
	p.closeTaps()

	p.mu.Lock()
	p.running = false
	p.turnCancel()
	failure := p.failure
	p.mu.Unlock()

	if failure != nil {
		return failure
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Queue injects frames at the head of the pipeline. A Cancel frame is
// rerouted to the out-of-band path so it overtakes queued data.
func (p *Pipeline) Queue(ctx context.Context, frames ...frame.Frame) error {
	for _, f := range frames {
		if f.Kind() == frame.KindCancel {
			p.CancelTurn()
			continue
		}
		select {
		case p.links[0] <- item{f: f, gen: p.gen.Load()}:
			p.tapFrame("task", f)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// CancelTurn interrupts the in-flight turn: it bumps the turn generation so
// queued frames from the old turn are dropped, cancels the turn context to
// abandon in-flight external calls, and delivers a Cancel frame to every
// stage on the priority path. Safe to call repeatedly. A cancel issued
// before Run starts the stages stays pending on each control channel and is
// applied as soon as they run.
func (p *Pipeline) CancelTurn() {
	p.gen.Add(1)
	p.mu.Lock()
	if p.running {
		p.turnCancel()
		p.turnCtx, p.turnCancel = context.WithCancel(p.runCtx)
	}
	p.mu.Unlock()

	cf := frame.NewCancel(&p.seq)
	for i := range p.stages {
		select {
		case p.ctrl[i] <- cf:
		default:
			// a cancel is already pending for this stage
		}
	}
	p.tapFrame("pipeline", cf)
}

// ObserverDrops reports how many tap copies were dropped because an
// observer could not keep up. The main flow is never stalled by observers.
func (p *Pipeline) ObserverDrops() uint64 {
	var n uint64
	for _, t := range p.taps {
		n += t.drops.Load()
	}
	return n
}

func (p *Pipeline) runStage(ctx context.Context, i int) error {
	st := p.stages[i]
	emit := p.emitter(i)

	for {
		// Control frames overtake queued data.
		select {
		case cf := <-p.ctrl[i]:
			p.deliverControl(ctx, st, cf)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cf := <-p.ctrl[i]:
			p.deliverControl(ctx, st, cf)
		case it := <-p.links[i]:
			if it.gen < p.gen.Load() {
				continue // cancelled turn, dropped
			}
			tctx := p.turnContext()
			if err := st.Process(tctx, it.f, emit); err != nil {
				if tctx.Err() != nil && errors.Is(err, context.Canceled) {
					continue // abandoned by interruption
				}
				if fatal := p.reportError(st.Name(), err); fatal {
					return err
				}
			}
		}
	}
}

// deliverControl hands an out-of-band frame to the stage so it can drop
// buffered turn state. Emissions during a reset are discarded.
func (p *Pipeline) deliverControl(ctx context.Context, st Stage, cf frame.Frame) {
	if err := st.Process(ctx, cf, discardEmit); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("stage control handling failed",
			slog.String("stage", st.Name()),
			slog.String("frame", cf.Kind().String()),
			slog.String("error", err.Error()))
	}
}

// reportError surfaces a stage error to the observers and decides whether
// it halts the pipeline. Errors not classified as recoverable prevent
// forward progress and are treated as fatal.
func (p *Pipeline) reportError(stage string, err error) (fatal bool) {
	fatal = !ai.IsRecoverable(err)
	p.tapFrame(stage, frame.NewError(&p.seq, stage, err, fatal))

	if !fatal {
		p.logger.Warn("recoverable stage error",
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		return false
	}

	p.logger.Error("fatal stage error, cancelling pipeline",
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	p.mu.Lock()
	if p.failure == nil {
		p.failure = fmt.Errorf("pipeline: stage %s: %w", stage, err)
	}
	cancel := p.runCancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func (p *Pipeline) emitter(i int) EmitFunc {
	out := p.links[i+1]
	name := p.stages[i].Name()
	return func(ctx context.Context, f frame.Frame) error {
		select {
		case out <- item{f: f, gen: p.gen.Load()}:
			p.tapFrame(name, f)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) turnContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turnCtx
}

func (p *Pipeline) tapFrame(stage string, f frame.Frame) {
	for _, t := range p.taps {
		t.offer(stage, f)
	}
}

// stopStages releases per-session stage resources, tail to head. Each
// stage is stopped at most once.
func (p *Pipeline) stopStages(n int) {
	for i := n - 1; i >= 0; i-- {
		lc, ok := p.stages[i].(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.OnStop(); err != nil {
			p.logger.Warn("stage stop failed",
				slog.String("stage", p.stages[i].Name()),
				slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) closeTaps() {
	for _, t := range p.taps {
		t.close()
	}
}
