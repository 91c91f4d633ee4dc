package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/chriscow/callpipe-go/pkg/frame"
)

const defaultObserverDepth = 256

// Observer is a read-only tap on the frame stream for metrics and
// telemetry. OnFrame is invoked from a dedicated goroutine per observer;
// delivery is best-effort and a slow observer never stalls stage-to-stage
// flow.
type Observer interface {
	OnFrame(stage string, f frame.Frame)
}

type tapped struct {
	stage string
	f     frame.Frame
}

// tap decouples an observer from the main flow with a buffered queue.
// When the queue is full the copy is dropped and counted.
type tap struct {
	obs   Observer
	ch    chan tapped
	quit  chan struct{}
	drops atomic.Uint64

	once sync.Once
	wg   sync.WaitGroup
}

func newTap(obs Observer, depth int) *tap {
	return &tap{obs: obs, ch: make(chan tapped, depth), quit: make(chan struct{})}
}

func (t *tap) start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case c := <-t.ch:
				t.obs.OnFrame(c.stage, c.f)
			case <-t.quit:
				// drain what is already buffered, then stop
				for {
					select {
					case c := <-t.ch:
						t.obs.OnFrame(c.stage, c.f)
					default:
						return
					}
				}
			}
		}
	}()
}

func (t *tap) offer(stage string, f frame.Frame) {
	select {
	case t.ch <- tapped{stage: stage, f: f}:
	default:
		t.drops.Add(1)
	}
}

func (t *tap) close() {
	t.once.Do(func() { close(t.quit) })
	t.wg.Wait()
}
